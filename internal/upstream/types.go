package upstream

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultBaseURL    = "https://api.apify.com"
	DefaultActor      = "compass~google-maps-reviews-scraper"
	DefaultLanguage   = "it"
	DefaultMaxReviews = 50
	DefaultSort       = "newest"
	DefaultTimeout    = 60 * time.Second
)

// Config 抓取服务配置
type Config struct {
	BaseURL    string
	Actor      string
	Token      string
	Language   string
	MaxReviews int
	Sort       string
	Timeout    time.Duration
	Retry      RetryConfig
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Actor == "" {
		c.Actor = DefaultActor
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.MaxReviews <= 0 {
		c.MaxReviews = DefaultMaxReviews
	}
	if c.Sort == "" {
		c.Sort = DefaultSort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// runInput 抓取任务的请求体
type runInput struct {
	PlaceIDs    []string `json:"placeIds"`
	Language    string   `json:"language"`
	MaxReviews  int      `json:"maxReviews"`
	ReviewsSort string   `json:"reviewsSort"`
}

// Review 评论的类型化视图，仅用于日志和摘要；接口返回的是原始 JSON
type Review struct {
	Name            string  `json:"name"`
	Text            string  `json:"text"`
	Stars           float64 `json:"stars"`
	PublishedAtDate string  `json:"publishedAtDate,omitempty"`
	ReviewURL       string  `json:"reviewUrl,omitempty"`
}

// Decode 将原始记录解析为 Review
func Decode(raw json.RawMessage) (Review, error) {
	var r Review
	if err := json.Unmarshal(raw, &r); err != nil {
		return Review{}, fmt.Errorf("decode review: %w", err)
	}
	return r, nil
}

// Summary 评论数量与平均评分
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Summarize 统计记录数量和平均星级，无法解析的记录只计数
func Summarize(items []json.RawMessage) Summary {
	s := Summary{Count: len(items)}
	var total float64
	rated := 0
	for _, raw := range items {
		r, err := Decode(raw)
		if err != nil || r.Stars <= 0 {
			continue
		}
		total += r.Stars
		rated++
	}
	if rated > 0 {
		s.Average = total / float64(rated)
	}
	return s
}

// StatusError 上游返回非2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}
