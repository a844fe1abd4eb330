package config

import (
	"review-proxy/internal/cache"
	"review-proxy/internal/compression"
	"review-proxy/internal/security"
	"review-proxy/internal/snapshot"
	"review-proxy/internal/upstream"

	"github.com/rs/zerolog"
)

// Init 加载 .env 后创建配置管理器
func Init(configPath string, logger zerolog.Logger) (*ConfigManager, error) {
	if err := LoadDotEnv(); err != nil {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	configManager, err := NewConfigManager(configPath, logger)
	if err != nil {
		logger.Error().Err(err).Str("path", configPath).Msg("failed to initialize config")
		return nil, err
	}
	return configManager, nil
}

// UpstreamClientConfig 抓取客户端配置
func (c *Config) UpstreamClientConfig() upstream.Config {
	retry := upstream.DefaultRetryConfig
	retry.MaxRetries = c.Upstream.MaxRetries

	return upstream.Config{
		BaseURL:    c.Upstream.BaseURL,
		Actor:      c.Upstream.Actor,
		Token:      c.Upstream.Token,
		Language:   c.Upstream.Language,
		MaxReviews: c.Upstream.MaxReviews,
		Sort:       c.Upstream.Sort,
		Timeout:    c.Upstream.Timeout.Std(),
		Retry:      retry,
	}
}

// CacheOptions 评论缓存参数
func (c *Config) CacheOptions(logger zerolog.Logger) cache.Options {
	return cache.Options{
		TTL:          c.Reviews.CacheTTL.Std(),
		DisableDedup: c.Reviews.DisableDedup,
		Logger:       logger,
	}
}

// S3Config 快照 S3 配置
func (c *Config) S3Config() snapshot.S3Config {
	s := c.Snapshot.S3
	return snapshot.S3Config{
		Endpoint:        s.Endpoint,
		Bucket:          s.Bucket,
		Region:          s.Region,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		UsePathStyle:    s.UsePathStyle,
		Prefix:          s.Prefix,
	}
}

// RefreshLimiterConfig 未启用时返回 nil
func (c *Config) RefreshLimiterConfig() *security.RefreshLimitConfig {
	if !c.Security.RefreshLimit.Enabled {
		return nil
	}
	return &security.RefreshLimitConfig{
		MaxRefreshes: c.Security.RefreshLimit.MaxRefreshes,
		Window:       c.Security.RefreshLimit.Window.Std(),
	}
}

// CompressionSettings 压缩配置
func (c *Config) CompressionSettings() compression.Config {
	return compression.Config{
		Gzip:    compression.CompressorConfig(c.Compression.Gzip),
		Brotli:  compression.CompressorConfig(c.Compression.Brotli),
		MinSize: c.Compression.MinSize,
	}
}
