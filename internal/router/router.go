package router

import (
	"net/http"
	"review-proxy/internal/compression"
	"review-proxy/internal/handler"
	"review-proxy/internal/middleware"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// RouteHandler 定义路由处理器结构
type RouteHandler struct {
	Matcher func(*http.Request) bool
	Handler http.Handler
}

// Handlers 路由依赖的处理器
type Handlers struct {
	Reviews      *handler.ReviewsHandler
	Health       *handler.HealthHandler
	CacheAdmin   *handler.CacheAdminHandler
	History      *handler.HistoryHandler
	RefreshLimit *handler.RefreshLimitHandler
	Security     *middleware.SecurityMiddleware
}

func pathIs(paths ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range paths {
			if r.URL.Path == p {
				return true
			}
		}
		return false
	}
}

// forced 匹配带 forceRefresh=true 的请求
func forced(match func(*http.Request) bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if !match(r) {
			return false
		}
		force, _ := strconv.ParseBool(r.URL.Query().Get("forceRefresh"))
		return force
	}
}

// SetupMainRoutes 设置对外的读取路由
func SetupMainRoutes(h Handlers) []RouteHandler {
	reviews := http.Handler(http.HandlerFunc(h.Reviews.GetReviews))
	refresh := http.Handler(http.HandlerFunc(h.Reviews.RefreshReviews))
	forcedReviews := reviews
	if h.Security != nil {
		refresh = h.Security.RefreshLimit(refresh)
		forcedReviews = h.Security.RefreshLimit(reviews)
	}

	reviewPaths := pathIs("/reviews", "/api/reviews", "/api/google-reviews")
	return []RouteHandler{
		{
			Matcher: pathIs("/healthz"),
			Handler: h.Health,
		},
		// 强制刷新与 /refresh-reviews 共用限流
		{
			Matcher: forced(reviewPaths),
			Handler: forcedReviews,
		},
		{
			Matcher: reviewPaths,
			Handler: reviews,
		},
		{
			Matcher: pathIs("/refresh-reviews", "/api/refresh-reviews"),
			Handler: refresh,
		},
	}
}

// New 组装路由和中间件链；compManager 可在运行时替换
func New(h Handlers, compManager *atomic.Pointer[compression.Manager], logger zerolog.Logger) http.Handler {
	_, adminHandler := SetupAdminRoutes(h)
	handlers := append(SetupMainRoutes(h), adminHandler)

	mainHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rh := range handlers {
			if rh.Matcher(r) {
				rh.Handler.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})

	var next http.Handler = mainHandler
	if compManager != nil {
		inner := next
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := compManager.Load()
			if current == nil {
				inner.ServeHTTP(w, r)
				return
			}
			middleware.CompressionMiddleware(current)(inner).ServeHTTP(w, r)
		})
	}

	return middleware.RequestLogger(logger)(next)
}
