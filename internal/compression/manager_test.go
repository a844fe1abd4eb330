package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPrefersBrotli(t *testing.T) {
	m := NewManager(DefaultConfig())

	tests := []struct {
		header string
		want   Encoding
	}{
		{"", ""},
		{"identity", ""},
		{"gzip", EncodingGzip},
		{"gzip, deflate, br", EncodingBrotli},
		{"br;q=0.5, gzip", EncodingGzip},
		{"br;q=0, gzip;q=0", ""},
		{"*", EncodingBrotli},
	}
	for _, tt := range tests {
		_, got := m.Select(tt.header)
		assert.Equal(t, tt.want, got, "Accept-Encoding %q", tt.header)
	}
}

func TestSelectRespectsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brotli.Enabled = false
	m := NewManager(cfg)

	_, got := m.Select("br, gzip")
	assert.Equal(t, EncodingGzip, got)

	_, got = m.Select("br")
	assert.Equal(t, Encoding(""), got)
}

func TestCompressorsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"name":"Ann","text":"Great food","stars":5}`), 20)

	var gzBuf bytes.Buffer
	w, err := NewGzipCompressor(99).Compress(&gzBuf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	gr, err := gzip.NewReader(&gzBuf)
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	var brBuf bytes.Buffer
	w, err = NewBrotliCompressor(-1).Compress(&brBuf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err = io.ReadAll(brotli.NewReader(&brBuf))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
