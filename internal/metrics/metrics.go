// Package metrics 暴露扫描服务的 Prometheus 指标
package metrics

import (
	"context"
	"strconv"
	"time"

	"ats-scanner/internal/cache"
	"ats-scanner/internal/scoring"
	"ats-scanner/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ats"

// Metrics 服务指标集合
type Metrics struct {
	gatherer prometheus.Gatherer

	scansTotal         *prometheus.CounterVec
	scanDuration       *prometheus.HistogramVec
	extractionFailures *prometheus.CounterVec
	grammarFailures    prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

// New 在给定的 registry 上注册全部指标
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		gatherer: reg,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans by scoring type.",
		}, []string{"scoring_type"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a single scan.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Document extraction failures by kind.",
		}, []string{"kind"}),
		grammarFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grammar_check_failures_total",
			Help:      "Grammar service calls that failed and fell back to the neutral score.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"method", "path", "status"}),
	}

	for _, c := range []prometheus.Collector{
		m.scansTotal, m.scanDuration, m.extractionFailures, m.grammarFailures, m.httpRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterCacheStats 以 CounterFunc 形式导出缓存命中统计
func (m *Metrics) RegisterCacheStats(reg prometheus.Registerer, stats func() cache.Stats) error {
	counters := map[string]func(cache.Stats) int64{
		"hits":        func(s cache.Stats) int64 { return s.Hits },
		"shared_hits": func(s cache.Stats) int64 { return s.SharedHits },
		"misses":      func(s cache.Stats) int64 { return s.Misses },
		"evicted":     func(s cache.Stats) int64 { return s.Evicted },
	}
	for name, pick := range counters {
		pick := pick
		c := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction_cache",
			Name:      name + "_total",
			Help:      "Extraction cache " + name + ".",
		}, func() float64 { return float64(pick(stats())) })
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveScan 记录一次扫描结果
func (m *Metrics) ObserveScan(mode string, scoringType types.ScoringType, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(string(scoringType)).Inc()
	m.scanDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveExtractionFailure 记录一次提取失败
func (m *Metrics) ObserveExtractionFailure(kind string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(kind).Inc()
}

// InstrumentGrammar 包装语法检查器，统计失败次数
func (m *Metrics) InstrumentGrammar(checker scoring.GrammarChecker) scoring.GrammarChecker {
	if m == nil || checker == nil {
		return checker
	}
	return &countingChecker{next: checker, failures: m.grammarFailures}
}

type countingChecker struct {
	next     scoring.GrammarChecker
	failures prometheus.Counter
}

func (c *countingChecker) Check(ctx context.Context, text string) ([]types.GrammarIssue, error) {
	issues, err := c.next.Check(ctx, text)
	if err != nil {
		c.failures.Inc()
	}
	return issues, err
}

// Middleware 统计 HTTP 请求，路径使用路由模板
func (m *Metrics) Middleware(metricsPath string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if string(c.Path()) == metricsPath {
			c.Next(ctx)
			return
		}
		c.Next(ctx)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(
			string(c.Method()),
			path,
			strconv.Itoa(c.Response.StatusCode()),
		).Inc()
	}
}

// Handler 返回 /metrics 的 Hertz 处理函数，内部转成 net/http 请求交给 promhttp
func (m *Metrics) Handler() app.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(ctx context.Context, c *app.RequestContext) {
		req, err := adaptor.GetCompatRequest(&c.Request)
		if err != nil {
			c.AbortWithStatus(consts.StatusInternalServerError)
			return
		}
		h.ServeHTTP(adaptor.GetCompatResponseWriter(&c.Response), req.WithContext(ctx))
	}
}
