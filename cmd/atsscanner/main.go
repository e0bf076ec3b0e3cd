package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ats-scanner/internal/api/handler"
	"ats-scanner/internal/api/router"
	"ats-scanner/internal/config"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/metrics"
	"ats-scanner/internal/outbox"
	"ats-scanner/internal/processor"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	hconfig "github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

const version = "1.0.0"

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径，为空时在常见位置查找")
	address := pflag.String("address", "", "覆盖 server.address")
	sampleConfig := pflag.String("sample-config", "", "在指定路径生成示例配置后退出")
	pflag.Parse()

	if *sampleConfig != "" {
		if err := config.CreateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "生成示例配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("示例配置已写入 %s\n", *sampleConfig)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置文件失败: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	initLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	var (
		m   *metrics.Metrics
		reg *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if m, err = metrics.New(reg); err != nil {
			logger.Fatal().Err(err).Msg("注册指标失败")
		}
	}

	scanner, err := processor.BuildScanner(ctx, cfg, storageManager, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化扫描器失败")
	}
	if m != nil {
		if err := m.RegisterCacheStats(reg, scanner.Cache().Stats); err != nil {
			logger.Fatal().Err(err).Msg("注册缓存指标失败")
		}
	}
	scanner.Cache().Start()
	defer scanner.Cache().Stop()

	// outbox 中继与异步消费者只在 MySQL 和 RabbitMQ 都可用时启动
	var relay *outbox.MessageRelay
	if storageManager.MySQL != nil && storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.OutboxPollInterval, 5*time.Second)),
			outbox.WithBatchSize(cfg.RabbitMQ.OutboxBatchSize),
			outbox.WithLogger(logger.Named("outbox")),
		)
		relay.Start()
	}

	consumerDone := make(chan struct{})
	if scanner.AsyncReady() && cfg.RabbitMQ.ConsumerWorkers > 0 {
		go func() {
			defer close(consumerDone)
			runScanConsumer(ctx, cfg, storageManager.RabbitMQ, scanner)
		}()
	} else {
		close(consumerDone)
	}

	h := newServer(cfg)
	router.RegisterRoutes(h, handler.NewScanHandler(scanner), m, cfg.Metrics.Path, cfg.Server.APIKeys)

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器启动")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}

	cancel()
	<-consumerDone
	if relay != nil {
		relay.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("关闭链路追踪失败")
	}

	logger.Info().Msg("优雅退出完成")
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	logger.Logger = logger.Logger.With().
		Str("app", "ats-scanner").
		Str("version", version).
		Logger()
}

// newServer 创建 Hertz 服务，启用追踪时挂载 OpenTelemetry 中间件
func newServer(cfg *config.Config) *server.Hertz {
	// 批量上传需要容纳 max_files 个文件
	maxBody := cfg.Server.MaxUploadMB<<20*cfg.Batch.MaxFiles + 1<<20
	opts := []hconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithMaxRequestBodySize(maxBody),
		server.WithExitWaitTime(5 * time.Second),
	}

	if !cfg.Tracing.Enabled {
		return server.Default(opts...)
	}
	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(append(opts, tracer)...)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	return h
}

// runScanConsumer 消费异步扫描队列，连接中断后按 reconnect_retry_delay 重新订阅
func runScanConsumer(ctx context.Context, cfg *config.Config, mq *storage.RabbitMQ, scanner *processor.Scanner) {
	delay := config.GetDuration(cfg.RabbitMQ.ReconnectRetryDelay, 5*time.Second)
	for {
		done, err := mq.StartConsumer(ctx, cfg.RabbitMQ.ScanQueue, cfg.RabbitMQ.PrefetchCount,
			cfg.RabbitMQ.ConsumerWorkers, scanner.HandleAsyncMessage)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("启动扫描消费者失败")
		} else {
			<-done
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
