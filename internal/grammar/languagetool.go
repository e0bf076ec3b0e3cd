// Package grammar 通过 LanguageTool HTTP 接口做语法检查
package grammar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ats-scanner/internal/tracing"
	"ats-scanner/internal/types"
	"ats-scanner/pkg/ratelimit"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultLanguage       = "en-US"
	defaultTimeout        = 10 * time.Second
	defaultQPM            = 20
	defaultMaxSuggestions = 3
	maxResponseBytes      = 4 << 20
)

// ErrUnavailable 语法服务不可用（网络错误或非200响应）
var ErrUnavailable = errors.New("grammar service unavailable")

var tracer = otel.Tracer("ats-scanner/grammar")

// checkResponse LanguageTool /v2/check 响应中用到的字段
type checkResponse struct {
	Matches []struct {
		Message      string `json:"message"`
		ShortMessage string `json:"shortMessage"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID       string `json:"id"`
			Category struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"category"`
		} `json:"rule"`
	} `json:"matches"`
}

// LanguageToolClient LanguageTool 客户端，带令牌桶限流
type LanguageToolClient struct {
	baseURL        string
	language       string
	client         *http.Client
	limiter        *ratelimit.TokenBucket
	maxSuggestions int
	logger         *zerolog.Logger
}

// Option 客户端配置项
type Option func(*LanguageToolClient)

// WithLanguage 设置检查语言，例如 en-US
func WithLanguage(lang string) Option {
	return func(c *LanguageToolClient) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithTimeout 设置 HTTP 超时
func WithTimeout(d time.Duration) Option {
	return func(c *LanguageToolClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *LanguageToolClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithQPM 设置每分钟请求上限
func WithQPM(qpm int) Option {
	return func(c *LanguageToolClient) {
		if qpm > 0 {
			c.limiter = ratelimit.NewTokenBucket(qpm, 0)
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(c *LanguageToolClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewLanguageToolClient 创建客户端，baseURL 形如 http://localhost:8010
func NewLanguageToolClient(baseURL string, opts ...Option) *LanguageToolClient {
	nop := zerolog.Nop()
	c := &LanguageToolClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		language:       defaultLanguage,
		client:         &http.Client{Timeout: defaultTimeout},
		limiter:        ratelimit.NewTokenBucket(defaultQPM, 0),
		maxSuggestions: defaultMaxSuggestions,
		logger:         &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check 提交文本并返回发现的问题。不重试，调用方决定失败时的处理。
func (c *LanguageToolClient) Check(ctx context.Context, text string) ([]types.GrammarIssue, error) {
	ctx, span := tracer.Start(ctx, "grammar.Check")
	defer span.End()
	span.SetAttributes(
		attribute.Int("grammar.text_length", len(text)),
		attribute.String("grammar.language", c.language),
	)

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return nil, fmt.Errorf("等待语法检查配额失败: %w", err)
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("创建语法检查请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return nil, err
	}

	var body checkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("解析语法检查响应失败: %w", err)
	}

	issues := make([]types.GrammarIssue, 0, len(body.Matches))
	for _, m := range body.Matches {
		issue := types.GrammarIssue{
			Category: m.Rule.Category.ID,
			Message:  m.Message,
		}
		if issue.Category == "" {
			issue.Category = m.Rule.ID
		}
		for i, r := range m.Replacements {
			if i >= c.maxSuggestions {
				break
			}
			issue.Suggestions = append(issue.Suggestions, r.Value)
		}
		issues = append(issues, issue)
	}

	span.SetAttributes(attribute.Int("grammar.issue_count", len(issues)))
	c.logger.Debug().
		Int("issues", len(issues)).
		Dur("elapsed", time.Since(start)).
		Msg("语法检查完成")
	return issues, nil
}
