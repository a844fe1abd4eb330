package security

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRefreshLimiterWindow(t *testing.T) {
	l := NewRefreshLimiter(&RefreshLimitConfig{MaxRefreshes: 2, Window: time.Minute}, zerolog.Nop())
	defer l.Stop()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow("1.2.3.4")
	assert.True(t, ok)

	now = now.Add(20 * time.Second)
	ok, retryAfter := l.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retryAfter)

	// 其他IP不受影响
	ok, _ = l.Allow("5.6.7.8")
	assert.True(t, ok)

	now = now.Add(40 * time.Second)
	ok, _ = l.Allow("1.2.3.4")
	assert.True(t, ok)
}

func TestRefreshLimiterCleanupAndReset(t *testing.T) {
	l := NewRefreshLimiter(&RefreshLimitConfig{MaxRefreshes: 1, Window: time.Minute}, zerolog.Nop())
	defer l.Stop()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.GetStats()["tracked_ips"])

	now = now.Add(2 * time.Minute)
	l.cleanup()
	assert.Equal(t, 0, l.GetStats()["tracked_ips"])

	l.Allow("a")
	ok, _ := l.Allow("a")
	assert.False(t, ok)
	assert.True(t, l.Reset("a"))
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestRefreshLimiterDefaults(t *testing.T) {
	l := NewRefreshLimiter(nil, zerolog.Nop())
	defer l.Stop()
	assert.Equal(t, DefaultRefreshLimitConfig().MaxRefreshes, l.config.MaxRefreshes)
	assert.Equal(t, DefaultRefreshLimitConfig().Window, l.config.Window)
}
