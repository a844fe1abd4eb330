package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv 加载 .env 文件，已存在的环境变量不会被覆盖；文件不存在不算错误
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置
func ApplyEnv(c *Config) error {
	var errs []error

	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", err))
		} else {
			c.Server.Port = port
		}
	}
	if v, ok := lookup("ENABLE_H2C"); ok {
		c.Server.EnableH2C = parseBool(v)
	}

	if v, ok := lookup("APIFY_TOKEN"); ok {
		c.Upstream.Token = v
	}
	if v, ok := lookup("APIFY_BASE_URL"); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := lookup("DEFAULT_PLACE_ID"); ok {
		c.Reviews.DefaultPlaceID = v
	}
	if v, ok := lookup("REVIEWS_CACHE_TTL"); ok {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REVIEWS_CACHE_TTL: %w", err))
		} else {
			c.Reviews.CacheTTL = d
		}
	}
	if v, ok := lookup("WARMUP_DELAY"); ok {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WARMUP_DELAY: %w", err))
		} else {
			c.Reviews.WarmupDelay = d
		}
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := lookup("ADMIN_TOKEN"); ok {
		c.Security.AdminToken = v
	}

	if v, ok := lookup("SNAPSHOT_BACKEND"); ok {
		c.Snapshot.Backend = v
	}
	if v, ok := lookup("SNAPSHOT_DIR"); ok {
		c.Snapshot.Dir = v
	}
	if v, ok := lookup("SNAPSHOT_S3_ENDPOINT"); ok {
		c.Snapshot.S3.Endpoint = v
	}
	if v, ok := lookup("SNAPSHOT_S3_BUCKET"); ok {
		c.Snapshot.S3.Bucket = v
	}
	if v, ok := lookup("SNAPSHOT_S3_REGION"); ok {
		c.Snapshot.S3.Region = v
	}
	if v, ok := lookup("SNAPSHOT_S3_ACCESS_KEY_ID"); ok {
		c.Snapshot.S3.AccessKeyID = v
	}
	if v, ok := lookup("SNAPSHOT_S3_SECRET_ACCESS_KEY"); ok {
		c.Snapshot.S3.SecretAccessKey = v
	}
	if v, ok := lookup("SNAPSHOT_S3_USE_PATH_STYLE"); ok {
		c.Snapshot.S3.UsePathStyle = parseBool(v)
	}
	if v, ok := lookup("SNAPSHOT_S3_PREFIX"); ok {
		c.Snapshot.S3.Prefix = v
	}

	// HISTORY_DB 设为空串可关闭历史记录
	if v, present := os.LookupEnv("HISTORY_DB"); present {
		c.History.Path = strings.TrimSpace(v)
	}

	return errors.Join(errs...)
}

// lookup 返回非空的环境变量
func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
