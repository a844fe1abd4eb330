package handler

import (
	"net/http"
	"time"
)

// HealthHandler 存活检查
type HealthHandler struct {
	caches    CacheInspector
	startTime time.Time
	version   string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(caches CacheInspector, version string) *HealthHandler {
	return &HealthHandler{
		caches:    caches,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse /healthz 响应
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Caches        int    `json:"caches"`
	Populated     int    `json:"populated"`
}

// ServeHTTP GET /healthz
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}

	uptime := time.Since(h.startTime)
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	if h.caches != nil {
		for _, s := range h.caches.Stats() {
			resp.Caches++
			if s.Populated {
				resp.Populated++
			}
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}
