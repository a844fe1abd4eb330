package compression

import (
	"io"

	"github.com/andybalholm/brotli"
)

type BrotliCompressor struct {
	level int
}

// NewBrotliCompressor level 有效范围 0-11
func NewBrotliCompressor(level int) *BrotliCompressor {
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		level = brotli.DefaultCompression
	}
	return &BrotliCompressor{level: level}
}

func (b *BrotliCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return brotli.NewWriterLevel(w, b.level), nil
}
