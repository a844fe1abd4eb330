package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"review-proxy/internal/compression"
	"review-proxy/internal/constants"
	apperrors "review-proxy/internal/errors"
	"review-proxy/internal/upstream"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ConfigManager struct {
	config     atomic.Pointer[Config]
	configPath string
	logger     zerolog.Logger

	mu        sync.Mutex
	callbacks []func(*Config)
}

// NewConfigManager 加载配置文件，文件不存在时写入默认配置
func NewConfigManager(configPath string, logger zerolog.Logger) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}

	config, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config.Store(config)

	logger.Info().
		Str("path", configPath).
		Int("port", config.Server.Port).
		Str("snapshot", config.Snapshot.Backend).
		Msg("config loaded")
	return cm, nil
}

// load 默认值 -> 配置文件 -> 环境变量 -> 校验
func (cm *ConfigManager) load() (*Config, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		data, err := os.ReadFile(cm.configPath)
		switch {
		case os.IsNotExist(err):
			if err := cm.createDefaultConfig(); err != nil {
				return nil, fmt.Errorf("create default config: %w", err)
			}
			cm.logger.Info().Str("path", cm.configPath).Msg("default config created")
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := unmarshal(cm.configPath, data, config); err != nil {
				return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "failed to parse "+cm.configPath, err)
			}
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

func marshal(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// createDefaultConfig 写入不含密钥的默认配置
func (cm *ConfigManager) createDefaultConfig() error {
	if dir := filepath.Dir(cm.configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := marshal(cm.configPath, DefaultConfig())
	if err != nil {
		return err
	}

	tempFile := cm.configPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempFile, cm.configPath)
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	comp := compression.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port: constants.DefaultPort,
		},
		Reviews: ReviewsConfig{
			CacheTTL:    Duration(constants.ReviewsCacheTTL),
			MaxPlaces:   constants.MaxPlaces,
			WarmupDelay: Duration(constants.DefaultWarmupDelay),
		},
		Upstream: UpstreamConfig{
			BaseURL:    upstream.DefaultBaseURL,
			Actor:      upstream.DefaultActor,
			Language:   upstream.DefaultLanguage,
			MaxReviews: upstream.DefaultMaxReviews,
			Sort:       upstream.DefaultSort,
			Timeout:    Duration(upstream.DefaultTimeout),
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Dir:     constants.DefaultSnapshotDir,
			S3: SnapshotS3Config{
				Region: "us-east-1",
				Prefix: "reviews",
			},
		},
		History: HistoryConfig{
			Path:      constants.DefaultHistoryDB,
			Retention: Duration(constants.DefaultHistoryDuration),
		},
		Security: SecurityConfig{
			RefreshLimit: RefreshLimitConfig{
				Enabled:      true,
				MaxRefreshes: constants.RefreshLimitMax,
				Window:       Duration(constants.RefreshLimitWindow),
			},
		},
		Compression: CompressionConfig{
			Gzip:    CompressorConfig(comp.Gzip),
			Brotli:  CompressorConfig(comp.Brotli),
			MinSize: comp.MinSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// applyDefaults 修正文件中留空的字段
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Reviews.CacheTTL == 0 {
		c.Reviews.CacheTTL = def.Reviews.CacheTTL
	}
	if c.Reviews.MaxPlaces == 0 {
		c.Reviews.MaxPlaces = def.Reviews.MaxPlaces
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = def.Upstream.BaseURL
	}
	if c.Upstream.Actor == "" {
		c.Upstream.Actor = def.Upstream.Actor
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = def.Upstream.Timeout
	}
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = "none"
	}
	c.Snapshot.Backend = strings.ToLower(c.Snapshot.Backend)
	if c.Snapshot.Backend == "file" && c.Snapshot.Dir == "" {
		c.Snapshot.Dir = def.Snapshot.Dir
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate 校验配置
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Reviews.CacheTTL < 0 {
		problems = append(problems, "reviews cache TTL must be positive")
	}
	if c.Reviews.MaxPlaces < 0 {
		problems = append(problems, "reviews max places must not be negative")
	}
	if c.Reviews.WarmupDelay < 0 {
		problems = append(problems, "warm-up delay must not be negative")
	}
	if c.Upstream.MaxRetries < 0 {
		problems = append(problems, "upstream max retries must not be negative")
	}

	switch c.Snapshot.Backend {
	case "none":
	case "file":
		if c.Snapshot.Dir == "" {
			problems = append(problems, "snapshot dir is required for file backend")
		}
	case "s3":
		if c.Snapshot.S3.Bucket == "" {
			problems = append(problems, "snapshot S3 bucket is required for s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown snapshot backend %q", c.Snapshot.Backend))
	}

	if c.Security.RefreshLimit.Enabled {
		if c.Security.RefreshLimit.MaxRefreshes <= 0 {
			problems = append(problems, "refresh limit max refreshes must be positive")
		}
		if c.Security.RefreshLimit.Window <= 0 {
			problems = append(problems, "refresh limit window must be positive")
		}
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid config: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config.Load()
}

// ReloadConfig 重新读取配置文件和环境变量，失败时保留旧配置
func (cm *ConfigManager) ReloadConfig() error {
	config, err := cm.load()
	if err != nil {
		cm.logger.Warn().Err(err).Msg("config reload failed, keeping current config")
		return err
	}

	cm.config.Store(config)
	cm.triggerCallbacks(config)

	cm.logger.Info().Str("path", cm.configPath).Msg("config reloaded")
	return nil
}

// RegisterUpdateCallback 注册配置更新回调
func (cm *ConfigManager) RegisterUpdateCallback(callback func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, callback)
}

func (cm *ConfigManager) triggerCallbacks(cfg *Config) {
	cm.mu.Lock()
	callbacks := append([]func(*Config){}, cm.callbacks...)
	cm.mu.Unlock()

	for _, callback := range callbacks {
		callback(cfg)
	}
	cm.logger.Debug().Int("callbacks", len(callbacks)).Msg("config callbacks triggered")
}
