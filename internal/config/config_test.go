package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	apperrors "review-proxy/internal/errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 测试期间屏蔽会影响配置的环境变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENABLE_H2C", "APIFY_TOKEN", "APIFY_BASE_URL", "DEFAULT_PLACE_ID",
		"REVIEWS_CACHE_TTL", "WARMUP_DELAY", "LOG_LEVEL", "LOG_FORMAT", "ADMIN_TOKEN",
		"SNAPSHOT_BACKEND", "SNAPSHOT_DIR", "SNAPSHOT_S3_ENDPOINT", "SNAPSHOT_S3_BUCKET",
		"SNAPSHOT_S3_REGION", "SNAPSHOT_S3_ACCESS_KEY_ID", "SNAPSHOT_S3_SECRET_ACCESS_KEY",
		"SNAPSHOT_S3_USE_PATH_STYLE", "SNAPSHOT_S3_PREFIX",
	} {
		t.Setenv(key, "")
	}
}

func TestCreatesDefaultConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "data", "config.json")

	cm, err := NewConfigManager(path, zerolog.Nop())
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Reviews.CacheTTL.Std())
	assert.Equal(t, "it", cfg.Upstream.Language)
	assert.Equal(t, 50, cfg.Upstream.MaxReviews)
	assert.Equal(t, "newest", cfg.Upstream.Sort)
	assert.Zero(t, cfg.Upstream.MaxRetries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Contains(t, onDisk, "Reviews")
	assert.NotContains(t, string(data), "Token")
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
reviews:
  default_place_id: from-file
  cache_ttl: 2h
  warmup_delay: 0
snapshot:
  backend: s3
  s3:
    bucket: reviews
log:
  format: json
`), 0644))

	t.Setenv("APIFY_TOKEN", "tok")
	t.Setenv("DEFAULT_PLACE_ID", "from-env")
	t.Setenv("REVIEWS_CACHE_TTL", "90")
	t.Setenv("HISTORY_DB", "")

	cm, err := NewConfigManager(path, zerolog.Nop())
	require.NoError(t, err)
	cfg := cm.GetConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Reviews.DefaultPlaceID)
	assert.Equal(t, 90*time.Second, cfg.Reviews.CacheTTL.Std())
	assert.Zero(t, cfg.Reviews.WarmupDelay)
	assert.Equal(t, "tok", cfg.UpstreamClientConfig().Token)
	assert.Equal(t, "s3", cfg.Snapshot.Backend)
	assert.Equal(t, "reviews", cfg.S3Config().Bucket)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.History.Path)
	// 文件未设置的字段保留默认值
	assert.True(t, cfg.Compression.Brotli.Enabled)
	assert.NotNil(t, cfg.RefreshLimiterConfig())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Server":{"Port":70000},"Snapshot":{"Backend":"ftp"}}`), 0644))

	_, err := NewConfigManager(path, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "port 70000")
	assert.Contains(t, err.Error(), `"ftp"`)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = NewConfigManager(path, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestInvalidEnvDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REVIEWS_CACHE_TTL", "soon")
	cfg := DefaultConfig()
	err := ApplyEnv(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REVIEWS_CACHE_TTL")
}

func TestReloadTriggersCallbacks(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path, zerolog.Nop())
	require.NoError(t, err)

	var got *Config
	cm.RegisterUpdateCallback(func(c *Config) { got = c })

	t.Setenv("DEFAULT_PLACE_ID", "reloaded")
	require.NoError(t, cm.ReloadConfig())
	require.NotNil(t, got)
	assert.Equal(t, "reloaded", got.Reviews.DefaultPlaceID)
	assert.Same(t, got, cm.GetConfig())

	// 重载失败保留旧配置
	t.Setenv("PORT", "abc")
	assert.Error(t, cm.ReloadConfig())
	assert.Equal(t, "reloaded", cm.GetConfig().Reviews.DefaultPlaceID)
}

func TestDurationEncoding(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1h30m","b":45}`), &v))
	assert.Equal(t, 90*time.Minute, v.A.Std())
	assert.Equal(t, 45*time.Second, v.B.Std())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"1h30m0s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_TOKEN=from-dotenv\n"), 0600))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	// t.Setenv 置空的变量视为已存在，godotenv 不会覆盖，先移除
	os.Unsetenv("ADMIN_TOKEN")
	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("ADMIN_TOKEN") })
	assert.Equal(t, "from-dotenv", os.Getenv("ADMIN_TOKEN"))
}
