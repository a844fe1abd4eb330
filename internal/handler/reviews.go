package handler

import (
	"encoding/json"
	"net/http"
	"review-proxy/internal/cache"
	apperrors "review-proxy/internal/errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// staleWarning 上游失败时返回给客户端的提示，详细原因只写日志
const staleWarning = "upstream refresh failed, serving cached data"

// ReviewsResponse /reviews 与 /refresh-reviews 的响应体
type ReviewsResponse struct {
	Reviews   []json.RawMessage `json:"reviews"`
	Cached    bool              `json:"cached"`
	CacheTime int64             `json:"cacheTime"`
	Warning   string            `json:"warning,omitempty"`
}

// ReviewsHandler 通过缓存读取评论
type ReviewsHandler struct {
	reviews        cache.Getter[json.RawMessage]
	defaultPlaceID func() string
}

// NewReviewsHandler defaultPlaceID 在请求未带 placeId 时使用
func NewReviewsHandler(reviews cache.Getter[json.RawMessage], defaultPlaceID func() string) *ReviewsHandler {
	if defaultPlaceID == nil {
		defaultPlaceID = func() string { return "" }
	}
	return &ReviewsHandler{
		reviews:        reviews,
		defaultPlaceID: defaultPlaceID,
	}
}

// GetReviews GET /reviews?placeId=&forceRefresh=
func (h *ReviewsHandler) GetReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	forceRefresh, _ := strconv.ParseBool(r.URL.Query().Get("forceRefresh"))
	h.serve(w, r, forceRefresh)
}

// RefreshReviews GET /refresh-reviews?placeId=，总是请求上游
func (h *ReviewsHandler) RefreshReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, "GET, POST")
		return
	}
	h.serve(w, r, true)
}

func (h *ReviewsHandler) serve(w http.ResponseWriter, r *http.Request, forceRefresh bool) {
	logger := zerolog.Ctx(r.Context())

	placeID := strings.TrimSpace(r.URL.Query().Get("placeId"))
	if placeID == "" {
		placeID = strings.TrimSpace(h.defaultPlaceID())
	}
	if placeID == "" {
		writeError(w, r, apperrors.InvalidArgument("placeId is required"))
		return
	}

	result, err := h.reviews.Get(r.Context(), placeID, cache.GetOptions{ForceRefresh: forceRefresh})
	if err != nil {
		logger.Warn().Err(err).Str("place_id", placeID).Bool("force_refresh", forceRefresh).Msg("reviews request failed")
		writeError(w, r, err)
		return
	}

	resp := ReviewsResponse{
		Reviews:   result.Items,
		Cached:    result.Cached,
		CacheTime: result.FetchedAt.UnixMilli(),
	}
	if resp.Reviews == nil {
		resp.Reviews = []json.RawMessage{}
	}
	if result.Stale() {
		resp.Warning = staleWarning
		logger.Warn().Err(result.Warning).Str("place_id", placeID).Msg("serving stale reviews")
	}

	writeJSON(w, r, http.StatusOK, resp)
}
