package processor

import (
	"context"
	"fmt"
	"time"

	"ats-scanner/internal/cache"
	"ats-scanner/internal/config"
	"ats-scanner/internal/grammar"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/metrics"
	"ats-scanner/internal/parser"
	"ats-scanner/internal/scoring"
	"ats-scanner/internal/segment"
	"ats-scanner/internal/signals"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/validator"
)

// BuildExtractor 根据配置构建文档提取路由。
// parser.type 决定 PDF 使用的提取器；配置了 Tika 地址时 DOC/ODT/RTF 交给 Tika。
func BuildExtractor(ctx context.Context, cfg config.ParserConfig) (*parser.Router, error) {
	l := logger.Named("parser")
	opts := []parser.RouterOption{parser.WithRouterLogger(l)}

	var tika *parser.TikaExtractor
	if cfg.Tika.ServerURL != "" {
		tikaOpts := []parser.TikaOption{
			parser.WithMetadata(cfg.Tika.Metadata),
			parser.WithTikaLogger(l),
		}
		if cfg.Tika.Timeout > 0 {
			tikaOpts = append(tikaOpts, parser.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
		}
		tika = parser.NewTikaExtractor(cfg.Tika.ServerURL, tikaOpts...)
		opts = append(opts, parser.WithTika(tika))
	}

	switch cfg.Type {
	case "tika":
		if tika == nil {
			return nil, fmt.Errorf("parser.type 为 tika 但未配置 tika.server_url")
		}
		l.Info().Str("url", cfg.Tika.ServerURL).Msg("PDF 使用 Tika 提取")
		opts = append(opts, parser.WithPDFExtractor(tika))
	case "eino":
		einoExtractor, err := parser.NewEinoPDFExtractor(ctx, parser.WithEinoLogger(l))
		if err != nil {
			return nil, fmt.Errorf("创建 Eino PDF 提取器失败: %w", err)
		}
		l.Info().Msg("PDF 使用 Eino 提取")
		opts = append(opts, parser.WithPDFExtractor(einoExtractor))
	default:
		l.Info().Msg("PDF 使用内置提取器")
	}
	return parser.NewRouter(opts...), nil
}

// BuildScanner 按配置组装扫描器，store 中未初始化的后端会被跳过
func BuildScanner(ctx context.Context, cfg *config.Config, store *storage.Storage, m *metrics.Metrics) (*Scanner, error) {
	l := logger.Named("scanner")

	extractor, err := BuildExtractor(ctx, cfg.Parser)
	if err != nil {
		return nil, err
	}

	vocab := signals.DefaultVocabulary()
	if cfg.Skills.VocabularyFile != "" {
		vocab, err = signals.LoadVocabulary(cfg.Skills.VocabularyFile)
		if err != nil {
			return nil, fmt.Errorf("加载技能词表失败: %w", err)
		}
		l.Info().Int("skills", vocab.Len()).Str("file", cfg.Skills.VocabularyFile).Msg("已加载技能词表")
	}
	sigExtractor := signals.NewExtractor(vocab)

	engineOpts := []scoring.Option{
		scoring.WithExtractor(sigExtractor),
		scoring.WithLegacyPenalty(cfg.Scoring.LegacyPenalty),
		scoring.WithSampleLength(cfg.Scoring.SampleLength),
		scoring.WithGrammarTimeout(config.GetDuration(cfg.Scoring.GrammarTimeout, 10*time.Second)),
		scoring.WithLogger(logger.Named("scoring")),
	}
	if cfg.Grammar.Enabled {
		client := grammar.NewLanguageToolClient(cfg.Grammar.URL,
			grammar.WithLanguage(cfg.Grammar.Language),
			grammar.WithTimeout(config.GetDuration(cfg.Grammar.Timeout, 10*time.Second)),
			grammar.WithQPM(cfg.Grammar.QPM),
			grammar.WithLogger(logger.Named("grammar")),
		)
		engineOpts = append(engineOpts, scoring.WithGrammarChecker(m.InstrumentGrammar(client)))
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(config.GetDuration(cfg.Cache.TTL, 24*time.Hour)),
		cache.WithSweepInterval(config.GetDuration(cfg.Cache.SweepInterval, time.Hour)),
		cache.WithLogger(logger.Named("cache")),
	}

	opts := []Option{
		WithExtractor(extractor),
		WithSignalExtractor(sigExtractor),
		WithSegmenter(segment.New()),
		WithValidator(validator.New(
			validator.WithThreshold(cfg.Scoring.ValidationThreshold),
			validator.WithMinWords(cfg.Scoring.MinWords),
		)),
		WithEngine(scoring.NewEngine(engineOpts...)),
		WithMetrics(m),
		WithLogger(l),
		WithBatchLimits(cfg.Batch.MaxFiles, cfg.Batch.Concurrency),
		WithMaxUploadSize(cfg.Server.MaxUploadMB << 20),
		WithRequestTimeout(config.GetDuration(cfg.Server.RequestTimeout, 0)),
		WithCompletionEvent(cfg.RabbitMQ.ScanExchange, cfg.RabbitMQ.ScanCompletedKey),
	}

	// 只注入已初始化的后端，避免把 nil 指针包装成非 nil 接口
	if store != nil {
		if store.Redis != nil {
			if cfg.Cache.SharedTier {
				cacheOpts = append(cacheOpts, cache.WithSharedStore(store.Redis))
			}
			opts = append(opts, WithDeduper(store.Redis))
		}
		if store.MySQL != nil {
			opts = append(opts, WithHistory(store.MySQL))
		}
		if store.MinIO != nil {
			opts = append(opts, WithObjectStorage(store.MinIO))
		}
		if store.RabbitMQ != nil {
			opts = append(opts, WithPublisher(store.RabbitMQ))
		}
	}
	opts = append(opts, WithCache(cache.New(cacheOpts...)))

	s := NewScanner(opts...)
	l.Info().
		Str("parser", cfg.Parser.Type).
		Bool("grammar", cfg.Grammar.Enabled).
		Bool("history", s.history != nil).
		Bool("async", s.AsyncReady()).
		Msg("扫描器已就绪")
	return s, nil
}
