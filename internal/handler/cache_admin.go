package handler

import (
	"encoding/json"
	"net/http"
	"review-proxy/internal/cache"
	"strings"
	"time"
)

// CacheInspector 管理接口需要的缓存操作
type CacheInspector interface {
	Keys() []string
	Stats() map[string]cache.Stats
	Invalidate(key string) bool
	InvalidateAll() int
	TTL() time.Duration
}

type CacheAdminHandler struct {
	caches CacheInspector
}

func NewCacheAdminHandler(caches CacheInspector) *CacheAdminHandler {
	return &CacheAdminHandler{caches: caches}
}

// CacheStatsResponse 缓存统计
type CacheStatsResponse struct {
	TTLSeconds int64                  `json:"ttl_seconds"`
	Keys       []string               `json:"keys"`
	Caches     map[string]cache.Stats `json:"caches"`
}

// GetCacheStats 获取所有 key 的缓存统计
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	writeJSON(w, r, http.StatusOK, CacheStatsResponse{
		TTLSeconds: int64(h.caches.TTL().Seconds()),
		Keys:       h.caches.Keys(),
		Caches:     h.caches.Stats(),
	})
}

// ClearCache 清除单个 placeId 或全部缓存，下次请求会重新拉取
func (h *CacheAdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req struct {
		PlaceID string `json:"placeId"`
		All     bool   `json:"all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.PlaceID = strings.TrimSpace(req.PlaceID)
	switch {
	case req.All:
		cleared := h.caches.InvalidateAll()
		writeJSON(w, r, http.StatusOK, map[string]any{
			"success": true,
			"cleared": cleared,
		})
	case req.PlaceID != "":
		if !h.caches.Invalidate(req.PlaceID) {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "no cache for placeId"})
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"success": true,
			"cleared": 1,
			"placeId": req.PlaceID,
		})
	default:
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "placeId or all is required"})
	}
}
