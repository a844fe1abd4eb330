package handler

import (
	"context"
	"net/http"
	"review-proxy/internal/storage"
	"strconv"
)

// HistoryReader 刷新历史查询
type HistoryReader interface {
	Recent(ctx context.Context, key string, limit int) ([]storage.RefreshRecord, error)
}

type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler history 为 nil 表示未启用历史记录
func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// GetRefreshes GET /admin/api/refreshes?placeId=&limit=
func (h *HistoryHandler) GetRefreshes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.history == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "refresh history is disabled"})
		return
	}

	query := r.URL.Query()
	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.history.Recent(r.Context(), query.Get("placeId"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"refreshes": records,
		"count":     len(records),
	})
}
