package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL 默认缓存有效期
const DefaultTTL = 24 * time.Hour

// Fetcher 外部数据源，按 key 拉取一组有序记录
type Fetcher[T any] interface {
	Fetch(ctx context.Context, key string) ([]T, error)
}

// FetcherFunc 函数适配器
type FetcherFunc[T any] func(ctx context.Context, key string) ([]T, error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, key string) ([]T, error) {
	return f(ctx, key)
}

// Getter 由 Cache 和 Registry 共同实现
type Getter[T any] interface {
	Get(ctx context.Context, key string, opts GetOptions) (Result[T], error)
}

// CacheEntry 一次完整拉取的结果
type CacheEntry[T any] struct {
	Key       string    `json:"key"`
	Items     []T       `json:"items"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age 距离拉取时间的时长
func (e CacheEntry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Options 缓存构造参数
type Options struct {
	TTL time.Duration
	// DisableDedup 关闭并发刷新合并，每个调用各自请求上游
	DisableDedup bool
	// Now 时钟，测试时注入
	Now    func() time.Time
	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// GetOptions 单次读取参数
type GetOptions struct {
	ForceRefresh bool
}

// Result 读取结果
// Cached 为 false 表示本次调用刚从上游拉取；Warning 非空表示上游失败后返回了旧数据
type Result[T any] struct {
	Key       string
	Items     []T
	Cached    bool
	FetchedAt time.Time
	Warning   error
}

// Stale 是否为上游失败后回退的旧数据
func (r Result[T]) Stale() bool {
	return r.Warning != nil
}

// RefreshEvent 每次请求上游后触发，成功时 Entry 非空
type RefreshEvent[T any] struct {
	Key      string
	Started  time.Time
	Duration time.Duration
	Entry    *CacheEntry[T]
	Err      error
}

// Stats 缓存统计信息
type Stats struct {
	Key             string    `json:"key"`
	Populated       bool      `json:"populated"`
	Items           int       `json:"items"`
	FetchedAt       time.Time `json:"fetched_at,omitzero"`
	AgeSeconds      float64   `json:"age_seconds"`
	TTLSeconds      float64   `json:"ttl_seconds"`
	HitCount        int64     `json:"hit_count"`
	MissCount       int64     `json:"miss_count"`
	RefreshCount    int64     `json:"refresh_count"`
	RefreshFailures int64     `json:"refresh_failures"`
	StaleServed     int64     `json:"stale_served"`
	HitRate         float64   `json:"hit_rate"`
	LastError       string    `json:"last_error,omitempty"`
}
