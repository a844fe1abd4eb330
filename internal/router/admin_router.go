package router

import (
	"net/http"
	"strings"
)

// Route 定义路由结构
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// SetupAdminRoutes 设置管理接口路由，全部需要 Bearer token
func SetupAdminRoutes(h Handlers) ([]Route, RouteHandler) {
	apiRoutes := []Route{
		{http.MethodGet, "/admin/api/cache/stats", h.CacheAdmin.GetCacheStats},
		{http.MethodPost, "/admin/api/cache/clear", h.CacheAdmin.ClearCache},
		{http.MethodGet, "/admin/api/refreshes", h.History.GetRefreshes},
		{http.MethodGet, "/admin/api/refresh-limit", h.RefreshLimit.GetStats},
		{http.MethodPost, "/admin/api/refresh-limit/reset", h.RefreshLimit.Reset},
	}

	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matched := false
		for _, route := range apiRoutes {
			if r.URL.Path != route.Pattern {
				continue
			}
			matched = true
			if r.Method == route.Method {
				route.Handler(w, r)
				return
			}
		}

		if matched {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		http.NotFound(w, r)
	})

	// 未配置鉴权时管理接口不对外暴露
	protected := http.NotFoundHandler()
	if h.Security != nil {
		protected = h.Security.AdminAuth(dispatch)
	}

	adminHandler := RouteHandler{
		Matcher: func(r *http.Request) bool {
			return strings.HasPrefix(r.URL.Path, "/admin/")
		},
		Handler: protected,
	}

	return apiRoutes, adminHandler
}
