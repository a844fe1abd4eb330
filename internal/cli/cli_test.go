package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("1.2.3")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", strings.TrimSpace(out))
}

func fakeScraper(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var input struct {
			PlaceIDs []string `json:"placeIds"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, []string{"place-123"}, input.PlaceIDs)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Ann","text":"Great food","stars":5},{"name":"Bo","text":"Ok","stars":3}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCommand(t *testing.T) {
	srv := fakeScraper(t)
	t.Setenv("APIFY_BASE_URL", srv.URL)
	t.Setenv("APIFY_TOKEN", "test-token")
	t.Setenv("DEFAULT_PLACE_ID", "place-123")
	configPath := filepath.Join(t.TempDir(), "config.json")

	out, err := execute(t, "fetch", "--config", configPath)
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Ann", items[0]["name"])

	out, err = execute(t, "fetch", "place-123", "--summary", "--config", configPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2,"average":4}`, out)
}

func TestFetchRequiresPlaceID(t *testing.T) {
	t.Setenv("DEFAULT_PLACE_ID", "")
	_, err := execute(t, "fetch", "--config", filepath.Join(t.TempDir(), "config.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeId is required")
}
