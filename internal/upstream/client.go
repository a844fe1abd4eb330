package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxErrorBody 错误响应最多保留的字节数
const maxErrorBody = 512

var ErrMissingToken = errors.New("scraper token is not configured")

// Client 评论抓取服务客户端
type Client struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient 创建抓取服务客户端
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Fetch 拉取指定地点的评论，按上游顺序返回原始记录
func (c *Client) Fetch(ctx context.Context, placeID string) ([]json.RawMessage, error) {
	if c.config.Token == "" {
		return nil, ErrMissingToken
	}

	body, err := json.Marshal(runInput{
		PlaceIDs:    []string{placeID},
		Language:    c.config.Language,
		MaxReviews:  c.config.MaxReviews,
		ReviewsSort: c.config.Sort,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scraper input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scraper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)

	start := time.Now()
	resp, err := executeWithRetry(c.httpClient, req, c.config.Retry, c.logger)
	if err != nil {
		return nil, fmt.Errorf("scraper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode scraper response: %w", err)
	}

	c.logger.Debug().
		Str("place_id", placeID).
		Int("items", len(items)).
		Dur("took", time.Since(start)).
		Msg("scraper fetch complete")

	return items, nil
}

// endpoint 同步运行并直接返回数据集的接口地址
func (c *Client) endpoint() string {
	return strings.TrimRight(c.config.BaseURL, "/") +
		"/v2/acts/" + url.PathEscape(c.config.Actor) + "/run-sync-get-dataset-items"
}
