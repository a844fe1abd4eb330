package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"math"
	"net/http"
	"review-proxy/internal/security"
	"strconv"
	"strings"

	"github.com/woodchen-ink/go-web-utils/iputil"
)

// SecurityMiddleware 刷新限流与管理接口鉴权
type SecurityMiddleware struct {
	limiter    *security.RefreshLimiter
	adminToken func() string
}

// NewSecurityMiddleware limiter 为 nil 时不限流；adminToken 每次请求读取，支持热更新
func NewSecurityMiddleware(limiter *security.RefreshLimiter, adminToken func() string) *SecurityMiddleware {
	if adminToken == nil {
		adminToken = func() string { return "" }
	}
	return &SecurityMiddleware{
		limiter:    limiter,
		adminToken: adminToken,
	}
}

// RefreshLimit 限制同一客户端IP的强制刷新频率
func (sm *SecurityMiddleware) RefreshLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := iputil.GetClientIP(r)
		allowed, retryAfter := sm.limiter.Allow(clientIP)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSONError(w, http.StatusTooManyRequests, "too many refresh requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuth 校验 Bearer token；未配置 token 时管理接口不可见
func (sm *SecurityMiddleware) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sm.adminToken()
		if token == "" {
			http.NotFound(w, r)
			return
		}

		provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
