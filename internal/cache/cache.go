package cache

import (
	"context"
	apperrors "review-proxy/internal/errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache 保存外部数据源最近一次成功拉取的结果
// 数据缺失、过期或被强制刷新时才请求上游；上游失败时回退到旧数据
type Cache[T any] struct {
	fetcher Fetcher[T]
	ttl     time.Duration
	now     func() time.Time
	dedup   bool
	logger  zerolog.Logger

	sf singleflight.Group

	mu    sync.RWMutex
	entry *CacheEntry[T] // 只做整体替换，不做原地修改

	hookMu sync.RWMutex
	hooks  []func(RefreshEvent[T])

	hitCount        atomic.Int64
	missCount       atomic.Int64
	refreshCount    atomic.Int64
	refreshFailures atomic.Int64
	staleServed     atomic.Int64
	lastError       atomic.Value // string
}

// New 创建空缓存
func New[T any](fetcher Fetcher[T], opts Options) *Cache[T] {
	opts = opts.withDefaults()
	c := &Cache[T]{
		fetcher: fetcher,
		ttl:     opts.TTL,
		now:     opts.Now,
		dedup:   !opts.DisableDedup,
		logger:  opts.Logger,
	}
	c.lastError.Store("")
	return c
}

// Get 读取 key 对应的数据
func (c *Cache[T]) Get(ctx context.Context, key string, opts GetOptions) (Result[T], error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result[T]{}, apperrors.InvalidArgument("key must not be empty")
	}

	entry := c.current()
	if !c.shouldRefresh(entry, key, opts.ForceRefresh) {
		c.hitCount.Add(1)
		c.logger.Debug().Str("key", key).Int("items", len(entry.Items)).Msg("cache hit")
		return resultFrom(entry, true, nil), nil
	}

	c.missCount.Add(1)
	fresh, err := c.refresh(ctx, key)
	if err == nil {
		return resultFrom(fresh, false, nil), nil
	}

	// 刷新失败时使用最新的可用数据（可能已被并发刷新替换）
	if last := c.current(); last != nil && last.Key == key {
		c.staleServed.Add(1)
		c.logger.Warn().Err(err).
			Str("key", key).
			Time("fetched_at", last.FetchedAt).
			Msg("refresh failed, serving cached data")
		return resultFrom(last, true, err), nil
	}

	c.logger.Error().Err(err).Str("key", key).Msg("refresh failed and no cached data")
	return Result[T]{}, apperrors.UpstreamUnavailable(err)
}

func (c *Cache[T]) shouldRefresh(entry *CacheEntry[T], key string, force bool) bool {
	switch {
	case force:
		return true
	case entry == nil:
		return true
	case entry.Key != key:
		return true
	default:
		return c.now().Sub(entry.FetchedAt) > c.ttl
	}
}

// refresh 请求上游，同一 key 的并发刷新合并为一次
func (c *Cache[T]) refresh(ctx context.Context, key string) (*CacheEntry[T], error) {
	if !c.dedup {
		return c.fetchAndStore(ctx, key)
	}

	// 共享的刷新不随单个调用方取消，上游请求自身的超时仍然生效
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx), key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CacheEntry[T]), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache[T]) fetchAndStore(ctx context.Context, key string) (*CacheEntry[T], error) {
	started := c.now()
	c.refreshCount.Add(1)

	items, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		c.refreshFailures.Add(1)
		c.lastError.Store(err.Error())
		c.emit(RefreshEvent[T]{
			Key:      key,
			Started:  started,
			Duration: c.now().Sub(started),
			Err:      err,
		})
		return nil, err
	}

	entry := &CacheEntry[T]{
		Key:       key,
		Items:     cloneItems(items),
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()
	c.lastError.Store("")

	c.logger.Info().
		Str("key", key).
		Int("items", len(entry.Items)).
		Dur("took", entry.FetchedAt.Sub(started)).
		Msg("cache refreshed")

	c.emit(RefreshEvent[T]{
		Key:      key,
		Started:  started,
		Duration: entry.FetchedAt.Sub(started),
		Entry:    entry,
	})
	return entry, nil
}

func (c *Cache[T]) current() *CacheEntry[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// OnRefresh 注册刷新回调，回调在刷新所在的 goroutine 中同步执行，不应阻塞
func (c *Cache[T]) OnRefresh(fn func(RefreshEvent[T])) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Cache[T]) emit(ev RefreshEvent[T]) {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	for _, fn := range c.hooks {
		fn(ev)
	}
}

// Peek 返回当前缓存内容，不触发拉取
func (c *Cache[T]) Peek() (CacheEntry[T], bool) {
	entry := c.current()
	if entry == nil {
		return CacheEntry[T]{}, false
	}
	return CacheEntry[T]{
		Key:       entry.Key,
		Items:     cloneItems(entry.Items),
		FetchedAt: entry.FetchedAt,
	}, true
}

// Seed 直接装入一条缓存（用于从快照恢复），是否过期仍按 FetchedAt 判断
func (c *Cache[T]) Seed(entry CacheEntry[T]) error {
	if strings.TrimSpace(entry.Key) == "" {
		return apperrors.InvalidArgument("seed entry has empty key")
	}
	if entry.FetchedAt.IsZero() {
		return apperrors.InvalidArgument("seed entry has no fetch time")
	}
	seeded := &CacheEntry[T]{
		Key:       strings.TrimSpace(entry.Key),
		Items:     cloneItems(entry.Items),
		FetchedAt: entry.FetchedAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 不用更旧的数据覆盖已有数据
	if c.entry != nil && c.entry.FetchedAt.After(seeded.FetchedAt) {
		return nil
	}
	c.entry = seeded
	return nil
}

// Invalidate 清空缓存，返回清空前是否有数据
func (c *Cache[T]) Invalidate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := c.entry != nil
	c.entry = nil
	return had
}

// TTL 返回构造时设置的有效期
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Stats 获取缓存统计信息
func (c *Cache[T]) Stats() Stats {
	hits := c.hitCount.Load()
	misses := c.missCount.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	s := Stats{
		TTLSeconds:      c.ttl.Seconds(),
		HitCount:        hits,
		MissCount:       misses,
		RefreshCount:    c.refreshCount.Load(),
		RefreshFailures: c.refreshFailures.Load(),
		StaleServed:     c.staleServed.Load(),
		HitRate:         hitRate,
		LastError:       c.lastError.Load().(string),
	}
	if entry := c.current(); entry != nil {
		s.Key = entry.Key
		s.Populated = true
		s.Items = len(entry.Items)
		s.FetchedAt = entry.FetchedAt
		s.AgeSeconds = entry.Age(c.now()).Seconds()
	}
	return s
}

func resultFrom[T any](entry *CacheEntry[T], cached bool, warning error) Result[T] {
	return Result[T]{
		Key:       entry.Key,
		Items:     cloneItems(entry.Items),
		Cached:    cached,
		FetchedAt: entry.FetchedAt,
		Warning:   warning,
	}
}

func cloneItems[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
