package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WarmUp 在 delay 之后对 key 发起一次预热拉取
// 失败只记录日志，不影响进程；ctx 取消时放弃预热。返回的通道在预热结束后关闭
func WarmUp[T any](ctx context.Context, g Getter[T], key string, delay time.Duration, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		if key == "" {
			logger.Debug().Msg("warm-up skipped: no default key")
			return
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		res, err := g.Get(ctx, key, GetOptions{})
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("warm-up fetch failed")
			return
		}
		logger.Info().
			Str("key", key).
			Int("items", len(res.Items)).
			Bool("cached", res.Cached).
			Msg("warm-up complete")
	}()

	return done
}
