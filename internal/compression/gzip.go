package compression

import (
	"compress/gzip"
	"io"
)

type GzipCompressor struct {
	level int
}

// NewGzipCompressor 超出范围的 level 回退为默认级别
func NewGzipCompressor(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.level)
}
