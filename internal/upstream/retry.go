package upstream

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig 重试配置
// MaxRetries 为 0 时只请求一次
type RetryConfig struct {
	MaxRetries   int           // 最大重试次数
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	Multiplier   float64       // 延迟倍增因子
}

// DefaultRetryConfig 默认不重试，是否重试由调用方决定
var DefaultRetryConfig = RetryConfig{
	MaxRetries:   0,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultRetryConfig.Multiplier
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// isRetriableError 判断错误是否可重试
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retriableErrors := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"connection refused",
		"no such host",
		"eof",
		"broken pipe",
	}
	for _, retryErr := range retriableErrors {
		if strings.Contains(errStr, retryErr) {
			return true
		}
	}
	return false
}

// isRetriableStatusCode 判断HTTP状态码是否可重试
func isRetriableStatusCode(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// executeWithRetry 执行带指数退避的HTTP请求
// 重试用尽后若有响应则返回最后一次响应，由调用方处理状态码
func executeWithRetry(client *http.Client, req *http.Request, config RetryConfig, logger zerolog.Logger) (*http.Response, error) {
	config = config.withDefaults()

	var lastErr error
	var lastResp *http.Response
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}

			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}

			logger.Debug().
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxRetries+1).
				AnErr("last_error", lastErr).
				Msg("retrying upstream request")
		}

		reqClone, err := cloneRequest(req)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(reqClone)
		if err == nil {
			if attempt == config.MaxRetries || !isRetriableStatusCode(resp.StatusCode) {
				return resp, nil
			}
			lastResp = resp
			lastErr = fmt.Errorf("retriable status code: %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}

		lastErr = err
		if !isRetriableError(err) {
			return nil, err
		}
		logger.Debug().Err(err).Msg("retriable upstream error")
	}

	if lastResp != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// cloneRequest 克隆请求并重建请求体
func cloneRequest(req *http.Request) (*http.Request, error) {
	reqClone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rebuild request body: %w", err)
		}
		reqClone.Body = body
	}
	return reqClone, nil
}
