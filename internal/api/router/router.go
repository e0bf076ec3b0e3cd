package router

import (
	"context"
	"crypto/subtle"
	"time"

	"ats-scanner/internal/api/handler"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/metrics"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
)

const (
	// HeaderRequestID 请求 ID 头
	HeaderRequestID = "X-Request-ID"
	// HeaderAPIKey API Key 头
	HeaderAPIKey = "X-API-Key"

	healthPath = "/api/v1/health"
)

// RegisterRoutes 注册 API 路由。m 为 nil 时不暴露指标，apiKeys 为空时不做鉴权
func RegisterRoutes(h *server.Hertz, scanHandler *handler.ScanHandler, m *metrics.Metrics, metricsPath string, apiKeys []string) {
	h.Use(RequestID())
	if m != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		h.Use(m.Middleware(metricsPath))
		h.GET(metricsPath, m.Handler())
	}

	api := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(APIKeyAuth(apiKeys))
	}

	api.POST("/scan", scanHandler.Scan)
	api.POST("/scan/batch", scanHandler.ScanBatch)
	api.POST("/scan/async", scanHandler.ScanAsync)

	api.GET("/scans", scanHandler.ListScans)
	api.GET("/scans/:id", scanHandler.GetScan)
	api.GET("/skills", scanHandler.SearchSkills)

	// 添加健康检查
	api.GET("/health", scanHandler.Health)
}

// RequestID 为每个请求分配 ID，写入响应头和请求日志
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Response.Header.Set(HeaderRequestID, id)

		l := logger.FromContext(ctx).With().Str("request_id", id).Logger()
		start := time.Now()
		c.Next(l.WithContext(ctx))

		l.Debug().
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", c.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("请求完成")
	}
}

// APIKeyAuth 校验 X-API-Key，健康检查不需要鉴权
func APIKeyAuth(keys []string) app.HandlerFunc {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		allowed = append(allowed, []byte(k))
	}

	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+HeaderAPIKey, ""),
		keyauth.WithContextKey("api_key"),
		keyauth.WithFilter(func(ctx context.Context, c *app.RequestContext) bool {
			return string(c.Path()) == healthPath
		}),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			for _, k := range allowed {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, nil
		}),
		keyauth.WithSuccessHandler(func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			logger.FromContext(ctx).Warn().Str("path", string(c.Path())).Msg("API Key 校验失败")
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "missing or invalid API key"})
		}),
	)
}
