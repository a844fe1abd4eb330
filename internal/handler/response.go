package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	apperrors "review-proxy/internal/errors"

	"github.com/rs/zerolog"
)

// writeJSON 写出 JSON 响应
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError 根据错误类型映射状态码，5xx 不向客户端暴露内部细节
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	writeJSON(w, r, status, map[string]string{"error": message})
}

// methodNotAllowed 返回 405
func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, r, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
