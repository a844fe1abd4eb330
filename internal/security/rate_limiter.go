package security

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RefreshLimiter 限制单个客户端IP在窗口期内的强制刷新次数，避免频繁打到上游
type RefreshLimiter struct {
	// 计数 map[ip]*windowRecord
	records sync.Map
	config  *RefreshLimitConfig
	now     func() time.Time
	logger  zerolog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
	cleanupWG   sync.WaitGroup
}

// RefreshLimitConfig 限流配置
type RefreshLimitConfig struct {
	// 窗口内允许的强制刷新次数
	MaxRefreshes int `json:"max_refreshes" yaml:"max_refreshes"`
	// 统计窗口
	Window time.Duration `json:"window" yaml:"window"`
	// 清理间隔
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// windowRecord 固定窗口计数
type windowRecord struct {
	mu        sync.Mutex
	count     int
	firstTime time.Time
	lastTime  time.Time
}

// DefaultRefreshLimitConfig 默认配置
func DefaultRefreshLimitConfig() *RefreshLimitConfig {
	return &RefreshLimitConfig{
		MaxRefreshes:    3,
		Window:          10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRefreshLimiter 创建限流器，零值字段使用默认值
func NewRefreshLimiter(config *RefreshLimitConfig, logger zerolog.Logger) *RefreshLimiter {
	if config == nil {
		config = DefaultRefreshLimitConfig()
	}

	defaultConfig := DefaultRefreshLimitConfig()
	if config.MaxRefreshes <= 0 {
		config.MaxRefreshes = defaultConfig.MaxRefreshes
	}
	if config.Window <= 0 {
		config.Window = defaultConfig.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaultConfig.CleanupInterval
	}

	l := &RefreshLimiter{
		config:      config,
		now:         time.Now,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	l.startCleanupTask()

	logger.Info().
		Int("max_refreshes", config.MaxRefreshes).
		Dur("window", config.Window).
		Msg("refresh limiter started")
	return l
}

// Allow 记录一次刷新请求；超出限制时返回 false 和需要等待的时间
func (l *RefreshLimiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()
	value, _ := l.records.LoadOrStore(ip, &windowRecord{firstTime: now, lastTime: now})
	record := value.(*windowRecord)

	record.mu.Lock()
	defer record.mu.Unlock()

	// 窗口已过，重新计数
	if now.Sub(record.firstTime) >= l.config.Window {
		record.count = 0
		record.firstTime = now
	}

	if record.count >= l.config.MaxRefreshes {
		retryAfter := record.firstTime.Add(l.config.Window).Sub(now)
		l.logger.Debug().Str("ip", ip).Dur("retry_after", retryAfter).Msg("refresh rate limited")
		return false, retryAfter
	}

	record.count++
	record.lastTime = now
	return true, 0
}

// Reset 清除某个IP的计数
func (l *RefreshLimiter) Reset(ip string) bool {
	_, existed := l.records.LoadAndDelete(ip)
	return existed
}

// GetStats 获取统计信息
func (l *RefreshLimiter) GetStats() map[string]interface{} {
	tracked := 0
	l.records.Range(func(key, value interface{}) bool {
		tracked++
		return true
	})

	return map[string]interface{}{
		"tracked_ips":   tracked,
		"max_refreshes": l.config.MaxRefreshes,
		"window":        l.config.Window.String(),
	}
}

// startCleanupTask 启动清理任务
func (l *RefreshLimiter) startCleanupTask() {
	l.cleanupWG.Add(1)
	go func() {
		defer l.cleanupWG.Done()
		ticker := time.NewTicker(l.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-l.stopCleanup:
				return
			}
		}
	}()
}

// cleanup 删除窗口已结束的记录
func (l *RefreshLimiter) cleanup() {
	now := l.now()

	var expired []string
	l.records.Range(func(key, value interface{}) bool {
		record := value.(*windowRecord)
		record.mu.Lock()
		if now.Sub(record.lastTime) >= l.config.Window {
			expired = append(expired, key.(string))
		}
		record.mu.Unlock()
		return true
	})

	for _, ip := range expired {
		l.records.Delete(ip)
	}

	if len(expired) > 0 {
		l.logger.Debug().Int("removed", len(expired)).Msg("refresh limiter cleanup")
	}
}

// Stop 停止清理任务
func (l *RefreshLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
	l.cleanupWG.Wait()
}
