// Package cache 按原始文件内容哈希缓存文档解析结果
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ats-scanner/pkg/utils"

	"github.com/rs/zerolog"
)

const (
	// DefaultTTL 缓存条目的默认有效期
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval 过期清理的默认间隔
	DefaultSweepInterval = time.Hour
)

// Entry 一次解析的结果，整体替换，不做局部修改
type Entry struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	StoredAt time.Time         `json:"stored_at"`
}

// ExtractFunc 把原始字节解析为文本和元数据
type ExtractFunc func(ctx context.Context, data []byte) (string, map[string]string, error)

// SharedStore 可选的共享缓存层（例如 Redis），本地未命中时查询，解析后回写
type SharedStore interface {
	GetExtraction(ctx context.Context, hash string) (Entry, bool, error)
	SetExtraction(ctx context.Context, hash string, entry Entry, ttl time.Duration) error
}

// Stats 命中统计
type Stats struct {
	Hits       int64
	SharedHits int64
	Misses     int64
	Evicted    int64
}

// Cache 进程内解析缓存：一个 map 加一把读写锁，锁内不做任何 I/O
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	shared   SharedStore
	logger   *zerolog.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	start    sync.Once
	stopOnce sync.Once

	hits, sharedHits, misses, evicted atomic.Int64
}

// Option 缓存配置项
type Option func(*Cache)

// WithTTL 设置条目有效期
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSweepInterval 设置清理间隔
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock 注入时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSharedStore 启用共享缓存层
func WithSharedStore(s SharedStore) Option {
	return func(c *Cache) {
		c.shared = s
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New 创建缓存，需调用 Start 启动后台清理
func New(opts ...Option) *Cache {
	nop := zerolog.Nop()
	c := &Cache{
		entries:  make(map[string]Entry),
		ttl:      DefaultTTL,
		interval: DefaultSweepInterval,
		now:      time.Now,
		logger:   &nop,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 读取未过期的条目；过期条目视为未命中，由清理协程删除
func (c *Cache) Get(hash string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[hash]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return Entry{}, false
	}
	return e, true
}

// Set 写入或整体替换条目，StoredAt 为空时使用当前时间
func (c *Cache) Set(hash string, e Entry) {
	if e.StoredAt.IsZero() {
		e.StoredAt = c.now()
	}
	c.mu.Lock()
	c.entries[hash] = e
	c.mu.Unlock()
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats 返回命中统计
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		SharedHits: c.sharedHits.Load(),
		Misses:     c.misses.Load(),
		Evicted:    c.evicted.Load(),
	}
}

// GetOrExtract 按内容哈希查缓存，未命中时在锁外调用 fn 解析并写回。
// 并发请求同一内容时可能重复解析，结果一致，后写者覆盖。
func (c *Cache) GetOrExtract(ctx context.Context, data []byte, fn ExtractFunc) (Entry, string, bool, error) {
	hash := utils.CalculateMD5(data)

	if e, ok := c.Get(hash); ok {
		c.hits.Add(1)
		return e, hash, true, nil
	}

	if c.shared != nil {
		e, ok, err := c.shared.GetExtraction(ctx, hash)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("hash", hash).Msg("读取共享解析缓存失败")
		case ok:
			c.sharedHits.Add(1)
			c.Set(hash, Entry{Text: e.Text, Metadata: e.Metadata})
			return e, hash, true, nil
		}
	}

	c.misses.Add(1)
	text, meta, err := fn(ctx, data)
	if err != nil {
		return Entry{}, hash, false, err
	}

	e := Entry{Text: text, Metadata: meta, StoredAt: c.now()}
	c.Set(hash, e)

	if c.shared != nil {
		if err := c.shared.SetExtraction(ctx, hash, e, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("hash", hash).Msg("写入共享解析缓存失败")
		}
	}
	return e, hash, false, nil
}

// Start 启动后台过期清理，重复调用无效
func (c *Cache) Start() {
	c.start.Do(func() {
		ticker := time.NewTicker(c.interval)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-c.done:
					return
				case <-ticker.C:
					c.Sweep()
				}
			}
		}()
		c.logger.Info().Dur("ttl", c.ttl).Dur("interval", c.interval).Msg("解析缓存清理已启动")
	})
}

// Stop 停止后台清理并等待其退出，可重复调用
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// Sweep 删除所有过期条目，返回删除数量。扫描只持读锁，写锁只覆盖批量删除
func (c *Cache) Sweep() int {
	n := c.deleteExpired(c.expiredKeys())
	if n > 0 {
		c.evicted.Add(int64(n))
		c.logger.Debug().Int("evicted", n).Msg("清理过期解析缓存")
	}
	return n
}

func (c *Cache) expiredKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k, e := range c.entries {
		if c.expired(e) {
			keys = append(keys, k)
		}
	}
	return keys
}

// deleteExpired 删除给定键中仍然过期的条目，期间被 Set 刷新的条目保留
func (c *Cache) deleteExpired(keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, k := range keys {
		if e, ok := c.entries[k]; ok && c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Sub(e.StoredAt) >= c.ttl
}
