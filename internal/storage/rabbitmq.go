package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ats-scanner/internal/config"
	"ats-scanner/internal/tracing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var mqTracer = otel.Tracer("ats-scanner/storage/rabbitmq")

// DeliveryHandler 处理一条投递消息，返回错误时消息被拒绝并进入死信队列
type DeliveryHandler func(ctx context.Context, body []byte) error

// deadLetterSuffix 死信 exchange 和死信队列在扫描 exchange/队列名后追加的后缀
const deadLetterSuffix = ".dlq"

// RabbitMQ 发布和消费扫描请求，发布 scan.completed 事件
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	publishMu   sync.Mutex
	declareMu   sync.Mutex
	declared    map[string]bool // 已声明的 exchange/queue/binding
	cfg         *config.RabbitMQConfig
	logger      *zerolog.Logger
}

// NewRabbitMQ 连接 RabbitMQ 并验证可以打开通道
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		cfg:      cfg,
		logger:   logger,
	}
	ch := mq.getChannel()
	if ch == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(ch)

	logger.Info().Str("exchange", cfg.ScanExchange).Str("queue", cfg.ScanQueue).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// getChannel 从池中取一个未关闭的通道，池空时新建
func (r *RabbitMQ) getChannel() *amqp.Channel {
	for {
		pooled, _ := r.channelPool.Get().(*amqp.Channel)
		if pooled == nil {
			break
		}
		if !pooled.IsClosed() {
			return pooled
		}
	}
	ch, err := r.conn.Channel()
	if err != nil {
		r.logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
		return nil
	}
	return ch
}

// putChannel 归还通道，已关闭的通道直接丢弃
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// topologyStep 一次幂等的声明操作，key 用于跳过已完成的声明
type topologyStep struct {
	key     string
	declare func(ch *amqp.Channel) error
}

// scanTopology 扫描请求 exchange/队列/绑定，以及接收被拒绝请求的死信 exchange 和队列
func (r *RabbitMQ) scanTopology() []topologyStep {
	exchange, queue, key := r.cfg.ScanExchange, r.cfg.ScanQueue, r.cfg.ScanRequestKey
	dlx, dlq := exchange+deadLetterSuffix, queue+deadLetterSuffix

	return []topologyStep{
		{"exchange:" + exchange, func(ch *amqp.Channel) error {
			return ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil)
		}},
		{"exchange:" + dlx, func(ch *amqp.Channel) error {
			return ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil)
		}},
		{"queue:" + dlq, func(ch *amqp.Channel) error {
			_, err := ch.QueueDeclare(dlq, true, false, false, false, nil)
			return err
		}},
		{"binding:" + dlx + ">" + dlq, func(ch *amqp.Channel) error {
			return ch.QueueBind(dlq, "", dlx, false, nil)
		}},
		{"queue:" + queue, func(ch *amqp.Channel) error {
			_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
				"x-dead-letter-exchange": dlx,
			})
			return err
		}},
		{"binding:" + exchange + ">" + queue + ":" + key, func(ch *amqp.Channel) error {
			return ch.QueueBind(queue, key, exchange, false, nil)
		}},
	}
}

// SetupScanTopology 声明扫描请求拓扑，重复调用只声明尚未成功的部分
func (r *RabbitMQ) SetupScanTopology() error {
	if err := validateTopologyNames(r.cfg); err != nil {
		return err
	}

	r.declareMu.Lock()
	defer r.declareMu.Unlock()

	for _, step := range r.scanTopology() {
		if r.declared[step.key] {
			continue
		}
		ch := r.getChannel()
		if ch == nil {
			return fmt.Errorf("无法获取RabbitMQ通道")
		}
		// 声明失败时 broker 会关闭通道，putChannel 会丢弃它
		err := step.declare(ch)
		r.putChannel(ch)
		if err != nil {
			return fmt.Errorf("声明 %s 失败: %w", step.key, err)
		}
		r.declared[step.key] = true
		r.logger.Debug().Str("declared", step.key).Msg("RabbitMQ拓扑已声明")
	}
	return nil
}

func validateTopologyNames(cfg *config.RabbitMQConfig) error {
	switch {
	case cfg.ScanExchange == "", cfg.ScanQueue == "", cfg.ScanRequestKey == "":
		return fmt.Errorf("扫描 exchange、队列和路由键都不能为空")
	case cfg.ScanExchange == "amq.default" || cfg.ScanExchange == "default":
		return fmt.Errorf("不能声明默认交换机 '%s'", cfg.ScanExchange)
	}
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	messageID := uuid.NewString()
	ctx, span := mqTracer.Start(ctx, "RabbitMQ.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", exchangeName),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
			attribute.String("messaging.message_id", messageID),
		),
	)
	defer span.End()

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	ch := r.getChannel()
	if ch == nil {
		err := fmt.Errorf("无法获取RabbitMQ通道")
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return err
	}
	defer r.putChannel(ch)

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	err := ch.PublishWithContext(
		ctx,
		exchangeName, // exchange名
		routingKey,   // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.DeadlineExceeded):
		tracing.RecordMQFailure(span, messageID, tracing.MQTimeout, "confirm timeout after "+deadlineString(ctx))
	default:
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ,
			attribute.Int("messaging.message.body.size", len(message)))
	}
	return err
}

func deadlineString(ctx context.Context) string {
	if d, ok := ctx.Deadline(); ok {
		return time.Until(d).String()
	}
	return "unknown"
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// PublishScanRequest 发布异步扫描请求
func (r *RabbitMQ) PublishScanRequest(ctx context.Context, msg ScanRequestMessage) error {
	return r.PublishJSON(ctx, r.cfg.ScanExchange, r.cfg.ScanRequestKey, msg, true)
}

// StartConsumer 启动 workers 个协程消费队列，ctx 取消后停止。
// 返回的通道在所有协程退出后关闭。
func (r *RabbitMQ) StartConsumer(ctx context.Context, queueName string, prefetchCount, workers int, handler DeliveryHandler) (<-chan struct{}, error) {
	if workers <= 0 {
		workers = 1
	}

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName, // 队列
		"",        // 消费者标签，留空由server生成唯一标签
		false,     // 自动确认
		false,     // 独占
		false,     // 非本地
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.consumeLoop(ctx, worker, deliveries, handler)
		}(i)
	}

	go func() {
		wg.Wait()
		// 消费通道独占使用，不归还到池
		ch.Close()
		r.logger.Info().Str("queue", queueName).Msg("RabbitMQ消费者已停止")
		close(done)
	}()

	r.logger.Info().
		Str("queue", queueName).
		Int("prefetch", prefetchCount).
		Int("workers", workers).
		Msg("RabbitMQ消费者已启动")
	return done, nil
}

func (r *RabbitMQ) consumeLoop(ctx context.Context, worker int, deliveries <-chan amqp.Delivery, handler DeliveryHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				r.logger.Warn().Int("worker", worker).Msg("RabbitMQ投递通道已关闭")
				return
			}
			r.handleDelivery(ctx, worker, delivery, handler)
		}
	}
}

func (r *RabbitMQ) handleDelivery(ctx context.Context, worker int, delivery amqp.Delivery, handler DeliveryHandler) {
	ctx, span := mqTracer.Start(ctx, "RabbitMQ.Consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.message_id", delivery.MessageId),
			attribute.String("messaging.rabbitmq.routing_key", delivery.RoutingKey),
			attribute.Int("worker", worker),
		),
	)
	defer span.End()

	if err := handler(ctx, delivery.Body); err != nil {
		r.logger.Error().Err(err).Int("worker", worker).Str("message_id", delivery.MessageId).Msg("处理消息失败，消息被拒绝")
		tracing.RecordMQFailure(span, delivery.MessageId, tracing.MQNack, err.Error())
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			r.logger.Error().Err(nackErr).Msg("拒绝消息失败")
		}
		return
	}
	if err := delivery.Ack(false); err != nil {
		r.logger.Error().Err(err).Msg("确认消息失败")
		return
	}
	span.SetStatus(codes.Ok, "")
}
