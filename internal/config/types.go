package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `json:"Server" yaml:"server"`
	Reviews     ReviewsConfig     `json:"Reviews" yaml:"reviews"`
	Upstream    UpstreamConfig    `json:"Upstream" yaml:"upstream"`
	Snapshot    SnapshotConfig    `json:"Snapshot" yaml:"snapshot"`
	History     HistoryConfig     `json:"History" yaml:"history"`
	Security    SecurityConfig    `json:"Security" yaml:"security"`
	Compression CompressionConfig `json:"Compression" yaml:"compression"`
	Log         LogConfig         `json:"Log" yaml:"log"`
}

type ServerConfig struct {
	Port      int  `json:"Port" yaml:"port"`
	EnableH2C bool `json:"EnableH2C" yaml:"enable_h2c"` // 明文 HTTP/2
}

type ReviewsConfig struct {
	DefaultPlaceID string   `json:"DefaultPlaceID" yaml:"default_place_id"` // 请求未带 placeId 时使用
	CacheTTL       Duration `json:"CacheTTL" yaml:"cache_ttl"`
	MaxPlaces      int      `json:"MaxPlaces" yaml:"max_places"`
	WarmupDelay    Duration `json:"WarmupDelay" yaml:"warmup_delay"` // 0 表示不预热
	DisableDedup   bool     `json:"DisableDedup" yaml:"disable_dedup"`
}

type UpstreamConfig struct {
	BaseURL    string   `json:"BaseURL" yaml:"base_url"`
	Actor      string   `json:"Actor" yaml:"actor"`
	Token      string   `json:"Token,omitempty" yaml:"token,omitempty"` // 通常由 APIFY_TOKEN 提供
	Language   string   `json:"Language" yaml:"language"`
	MaxReviews int      `json:"MaxReviews" yaml:"max_reviews"`
	Sort       string   `json:"Sort" yaml:"sort"`
	Timeout    Duration `json:"Timeout" yaml:"timeout"`
	MaxRetries int      `json:"MaxRetries" yaml:"max_retries"`
}

type SnapshotConfig struct {
	Backend string           `json:"Backend" yaml:"backend"` // none, file, s3
	Dir     string           `json:"Dir" yaml:"dir"`
	S3      SnapshotS3Config `json:"S3" yaml:"s3"`
}

type SnapshotS3Config struct {
	Endpoint        string `json:"Endpoint" yaml:"endpoint"`
	Bucket          string `json:"Bucket" yaml:"bucket"`
	Region          string `json:"Region" yaml:"region"`
	AccessKeyID     string `json:"AccessKeyID,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"SecretAccessKey,omitempty" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `json:"UsePathStyle" yaml:"use_path_style"`
	Prefix          string `json:"Prefix" yaml:"prefix"`
}

type HistoryConfig struct {
	Path      string   `json:"Path" yaml:"path"` // 为空时不记录
	Retention Duration `json:"Retention" yaml:"retention"`
}

type SecurityConfig struct {
	AdminToken   string             `json:"AdminToken,omitempty" yaml:"admin_token,omitempty"`
	RefreshLimit RefreshLimitConfig `json:"RefreshLimit" yaml:"refresh_limit"`
}

type RefreshLimitConfig struct {
	Enabled      bool     `json:"Enabled" yaml:"enabled"`
	MaxRefreshes int      `json:"MaxRefreshes" yaml:"max_refreshes"`
	Window       Duration `json:"Window" yaml:"window"`
}

type CompressionConfig struct {
	Gzip    CompressorConfig `json:"Gzip" yaml:"gzip"`
	Brotli  CompressorConfig `json:"Brotli" yaml:"brotli"`
	MinSize int              `json:"MinSize" yaml:"min_size"`
}

type CompressorConfig struct {
	Enabled bool `json:"Enabled" yaml:"enabled"`
	Level   int  `json:"Level" yaml:"level"`
}

type LogConfig struct {
	Level  string `json:"Level" yaml:"level"`
	Format string `json:"Format" yaml:"format"` // console 或 json
}

// Duration 配置文件中的时长，支持 "24h" 形式的字符串或整数秒
type Duration time.Duration

// Std 转换为 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration 解析 "90s"、"24h" 或纯数字（秒）
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}
