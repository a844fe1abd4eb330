package compression

import "io"

// Compressor 压缩器
type Compressor interface {
	Compress(w io.Writer) (io.WriteCloser, error)
}

// Encoding 响应使用的 Content-Encoding
type Encoding string

const (
	EncodingGzip   Encoding = "gzip"
	EncodingBrotli Encoding = "br"
)

// Config 压缩配置
type Config struct {
	Gzip   CompressorConfig `json:"Gzip" yaml:"gzip"`
	Brotli CompressorConfig `json:"Brotli" yaml:"brotli"`
	// 小于该字节数的响应不压缩
	MinSize int `json:"MinSize" yaml:"min_size"`
}

// CompressorConfig 单个压缩器配置
type CompressorConfig struct {
	Enabled bool `json:"Enabled" yaml:"enabled"`
	Level   int  `json:"Level" yaml:"level"`
}

// DefaultConfig 默认同时开启 brotli 和 gzip
func DefaultConfig() Config {
	return Config{
		Gzip:    CompressorConfig{Enabled: true, Level: 6},
		Brotli:  CompressorConfig{Enabled: true, Level: 4},
		MinSize: 512,
	}
}
