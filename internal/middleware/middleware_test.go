package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"review-proxy/internal/compression"
	"review-proxy/internal/logging"
	"review-proxy/internal/security"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var largeBody = strings.Repeat(`{"name":"Ann","text":"Great food","stars":5},`, 50)

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
}

func TestCompressionBrotli(t *testing.T) {
	h := CompressionMiddleware(compression.NewManager(compression.DefaultConfig()))(jsonHandler(http.StatusOK, largeBody))

	req := httptest.NewRequest(http.MethodGet, "/reviews", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))

	got, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, largeBody, string(got))
}

func TestCompressionGzipOnError(t *testing.T) {
	h := CompressionMiddleware(compression.NewManager(compression.DefaultConfig()))(jsonHandler(http.StatusBadGateway, largeBody))

	req := httptest.NewRequest(http.MethodGet, "/reviews", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, largeBody, string(got))
}

func TestCompressionSkipsSmallAndBinary(t *testing.T) {
	manager := compression.NewManager(compression.DefaultConfig())

	small := CompressionMiddleware(manager)(jsonHandler(http.StatusOK, `{"ok":true}`))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	small.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, `{"ok":true}`, rec.Body.String())

	binary := CompressionMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(bytes.Repeat([]byte{0x89}, 2048))
	}))
	rec = httptest.NewRecorder()
	binary.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, 2048, rec.Body.Len())
}

func TestRefreshLimit(t *testing.T) {
	limiter := security.NewRefreshLimiter(&security.RefreshLimitConfig{MaxRefreshes: 1, Window: time.Minute}, zerolog.Nop())
	defer limiter.Stop()

	sm := NewSecurityMiddleware(limiter, nil)
	h := sm.RefreshLimit(jsonHandler(http.StatusOK, `{}`))

	req := httptest.NewRequest(http.MethodGet, "/refresh-reviews", nil)
	req.RemoteAddr = "203.0.113.7:5000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "too many")
}

func TestAdminAuth(t *testing.T) {
	token := ""
	sm := NewSecurityMiddleware(nil, func() string { return token })
	h := sm.AdminAuth(jsonHandler(http.StatusOK, `{}`))

	req := httptest.NewRequest(http.MethodGet, "/admin/api/cache/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	token = "s3cret"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var seenID string
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/reviews?placeId=x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	id := rec.Header().Get(RequestIDHeader)
	_, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seenID)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, id, line["request_id"])
	assert.Equal(t, "/reviews", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])

	// 透传调用方提供的ID
	req.Header.Set(RequestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get(RequestIDHeader))
}
