package constants

import "time"

var (
	// 服务相关
	DefaultConfigPath      = "data/config.json"
	DefaultPort            = 3000
	ShutdownTimeout        = 15 * time.Second
	ReadHeaderTimeout      = 10 * time.Second
	IdleTimeout            = 120 * time.Second
	DefaultWarmupDelay     = 5 * time.Second
	DefaultSnapshotDir     = "data/snapshots"
	DefaultHistoryDB       = "data/history.db"
	DefaultHistoryDuration = 30 * 24 * time.Hour

	// 缓存相关
	ReviewsCacheTTL = 24 * time.Hour // 评论缓存有效期
	MaxPlaces       = 64             // 同时缓存的地点数

	// 刷新限流
	RefreshLimitMax    = 3
	RefreshLimitWindow = 10 * time.Minute
)
