package handler

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RefreshLimitAdmin 刷新限流器的管理操作
type RefreshLimitAdmin interface {
	GetStats() map[string]interface{}
	Reset(ip string) bool
}

type RefreshLimitHandler struct {
	limiter RefreshLimitAdmin
}

// NewRefreshLimitHandler limiter 为 nil 表示未启用限流
func NewRefreshLimitHandler(limiter RefreshLimitAdmin) *RefreshLimitHandler {
	return &RefreshLimitHandler{limiter: limiter}
}

// GetStats GET /admin/api/refresh-limit
func (h *RefreshLimitHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.limiter == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "refresh limit is disabled"})
		return
	}
	writeJSON(w, r, http.StatusOK, h.limiter.GetStats())
}

// Reset POST /admin/api/refresh-limit/reset {"ip": "..."}
func (h *RefreshLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if h.limiter == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "refresh limit is disabled"})
		return
	}

	var req struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if req.IP == "" {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "ip is required"})
		return
	}

	if !h.limiter.Reset(req.IP) {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "ip is not tracked"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"ip":      req.IP,
	})
}
