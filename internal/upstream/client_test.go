package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsInputAndPreservesOrder(t *testing.T) {
	var got runInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/compass~google-maps-reviews-scraper/run-sync-get-dataset-items", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Ann","text":"Great food","stars":5,"extra":{"a":1}},{"name":"Bob","text":"ok","stars":3}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret"}, zerolog.Nop())
	items, err := c.Fetch(context.Background(), "place-123")
	require.NoError(t, err)

	assert.Equal(t, runInput{
		PlaceIDs:    []string{"place-123"},
		Language:    DefaultLanguage,
		MaxReviews:  DefaultMaxReviews,
		ReviewsSort: DefaultSort,
	}, got)

	require.Len(t, items, 2)
	assert.JSONEq(t, `{"name":"Ann","text":"Great food","stars":5,"extra":{"a":1}}`, string(items[0]))
	first, err := Decode(items[0])
	require.NoError(t, err)
	assert.Equal(t, "Ann", first.Name)
	second, err := Decode(items[1])
	require.NoError(t, err)
	assert.Equal(t, "Bob", second.Name)
}

func TestFetchRequiresToken(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "place-1")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestFetchNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t"}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "place-1")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusPaymentRequired, statusErr.StatusCode)
	assert.Equal(t, "quota exceeded", statusErr.Body)
}

func TestFetchDoesNotRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t"}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "place-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in runInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"place-1"}, in.PlaceIDs)

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"name":"Ann"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL: srv.URL,
		Token:   "t",
		Retry:   RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, zerolog.Nop())

	items, err := c.Fetch(context.Background(), "place-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"not an array"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t"}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "place-1")
	assert.ErrorContains(t, err, "decode scraper response")
}

func TestFetchHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t", Timeout: 20 * time.Millisecond}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "place-1")
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"name":"Ann","stars":5}`),
		json.RawMessage(`{"name":"Bob","stars":3}`),
		json.RawMessage(`{"name":"Cy"}`),
		json.RawMessage(`not json`),
	}
	s := Summarize(items)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 4.0, s.Average, 1e-9)
}
