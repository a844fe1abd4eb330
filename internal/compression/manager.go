package compression

import (
	"strconv"
	"strings"
)

// Manager 根据 Accept-Encoding 选择压缩器
type Manager struct {
	gzip    Compressor
	brotli  Compressor
	minSize int
}

// NewManager 创建压缩管理器
func NewManager(config Config) *Manager {
	m := &Manager{minSize: config.MinSize}
	if config.Gzip.Enabled {
		m.gzip = NewGzipCompressor(config.Gzip.Level)
	}
	if config.Brotli.Enabled {
		m.brotli = NewBrotliCompressor(config.Brotli.Level)
	}
	return m
}

// MinSize 最小压缩字节数
func (m *Manager) MinSize() int {
	return m.minSize
}

// Select 返回客户端接受且已启用的压缩器，同权重时优先 brotli
func (m *Manager) Select(acceptEncoding string) (Compressor, Encoding) {
	if acceptEncoding == "" {
		return nil, ""
	}
	accepted := parseAcceptEncoding(acceptEncoding)

	brQ, brOK := qualityFor(accepted, string(EncodingBrotli))
	gzQ, gzOK := qualityFor(accepted, string(EncodingGzip))

	if m.brotli != nil && brOK && brQ > 0 && (!gzOK || m.gzip == nil || brQ >= gzQ) {
		return m.brotli, EncodingBrotli
	}
	if m.gzip != nil && gzOK && gzQ > 0 {
		return m.gzip, EncodingGzip
	}
	return nil, ""
}

// parseAcceptEncoding 解析 "br;q=0.9, gzip" 形式的头
func parseAcceptEncoding(header string) map[string]float64 {
	result := make(map[string]float64)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, params, _ := strings.Cut(part, ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		result[strings.ToLower(strings.TrimSpace(name))] = q
	}
	return result
}

func qualityFor(accepted map[string]float64, name string) (float64, bool) {
	if q, ok := accepted[name]; ok {
		return q, true
	}
	if q, ok := accepted["*"]; ok {
		return q, true
	}
	return 0, false
}
