package cache

import (
	"context"
	apperrors "review-proxy/internal/errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxKeys 注册表默认最多持有的缓存数
const DefaultMaxKeys = 64

// Registry 按 key 懒加载独立的 Cache，每个 key（如每个地点）各自维护一条缓存
type Registry[T any] struct {
	fetcher Fetcher[T]
	opts    Options
	maxKeys int

	mu     sync.Mutex
	caches map[string]*Cache[T]
	hooks  []func(RefreshEvent[T])
}

// NewRegistry 创建缓存注册表，maxKeys <= 0 时使用默认值
func NewRegistry[T any](fetcher Fetcher[T], opts Options, maxKeys int) *Registry[T] {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Registry[T]{
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		maxKeys: maxKeys,
		caches:  make(map[string]*Cache[T]),
	}
}

// Get 读取 key 对应缓存的数据
func (r *Registry[T]) Get(ctx context.Context, key string, opts GetOptions) (Result[T], error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result[T]{}, apperrors.InvalidArgument("key must not be empty")
	}
	return r.cacheFor(key).Get(ctx, key, opts)
}

// cacheFor 获取或创建 key 对应的缓存，满额时淘汰最久未刷新的一个
func (r *Registry[T]) cacheFor(key string) *Cache[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.caches[key]; ok {
		return c
	}

	if len(r.caches) >= r.maxKeys {
		r.evictOldestLocked()
	}

	c := New(r.fetcher, r.opts)
	for _, fn := range r.hooks {
		c.OnRefresh(fn)
	}
	r.caches[key] = c
	return c
}

func (r *Registry[T]) evictOldestLocked() {
	var oldestKey string
	var oldest *CacheEntry[T]
	found := false
	for k, c := range r.caches {
		entry := c.current()
		// 从未成功拉取的缓存优先淘汰
		if entry == nil {
			oldestKey = k
			found = true
			break
		}
		if !found || entry.FetchedAt.Before(oldest.FetchedAt) {
			oldestKey = k
			oldest = entry
			found = true
		}
	}
	if found {
		delete(r.caches, oldestKey)
		r.opts.Logger.Debug().Str("key", oldestKey).Msg("evicted cache from registry")
	}
}

// Lookup 返回已存在的缓存，不会创建
func (r *Registry[T]) Lookup(key string) (*Cache[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[strings.TrimSpace(key)]
	return c, ok
}

// Keys 返回当前所有 key（已排序）
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.caches))
	for k := range r.caches {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Seed 将快照装入对应 key 的缓存
func (r *Registry[T]) Seed(entry CacheEntry[T]) error {
	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return apperrors.InvalidArgument("seed entry has empty key")
	}
	return r.cacheFor(key).Seed(entry)
}

// Invalidate 清空单个 key 的缓存
func (r *Registry[T]) Invalidate(key string) bool {
	c, ok := r.Lookup(key)
	if !ok {
		return false
	}
	return c.Invalidate()
}

// InvalidateAll 清空所有缓存，返回清空的数量
func (r *Registry[T]) InvalidateAll() int {
	r.mu.Lock()
	caches := make([]*Cache[T], 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	count := 0
	for _, c := range caches {
		if c.Invalidate() {
			count++
		}
	}
	return count
}

// OnRefresh 为现有及之后创建的缓存注册刷新回调
func (r *Registry[T]) OnRefresh(fn func(RefreshEvent[T])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
	for _, c := range r.caches {
		c.OnRefresh(fn)
	}
}

// Stats 每个 key 的统计信息
func (r *Registry[T]) Stats() map[string]Stats {
	r.mu.Lock()
	snapshot := make(map[string]*Cache[T], len(r.caches))
	for k, c := range r.caches {
		snapshot[k] = c
	}
	r.mu.Unlock()

	stats := make(map[string]Stats, len(snapshot))
	for k, c := range snapshot {
		s := c.Stats()
		s.Key = k
		stats[k] = s
	}
	return stats
}

// TTL 返回注册表中缓存使用的有效期
func (r *Registry[T]) TTL() time.Duration {
	return r.opts.TTL
}
