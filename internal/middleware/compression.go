package middleware

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"net"
	"net/http"
	"review-proxy/internal/compression"
	"strings"
)

// compressResponseWriter 先缓冲到 MinSize，再决定是否压缩
type compressResponseWriter struct {
	http.ResponseWriter
	compressor compression.Compressor
	encoding   compression.Encoding
	minSize    int

	statusCode int
	buf        bytes.Buffer
	writer     io.WriteCloser
	decided    bool
	compressed bool
}

// CompressionMiddleware 按 Accept-Encoding 压缩响应
func CompressionMiddleware(manager *compression.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			compressor, encoding := manager.Select(r.Header.Get("Accept-Encoding"))
			if compressor == nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			cw := &compressResponseWriter{
				ResponseWriter: w,
				compressor:     compressor,
				encoding:       encoding,
				minSize:        manager.MinSize(),
			}
			defer cw.finish()

			next.ServeHTTP(cw, r)
		})
	}
}

func (cw *compressResponseWriter) WriteHeader(statusCode int) {
	if cw.statusCode != 0 {
		return
	}
	cw.statusCode = statusCode

	if !shouldCompressForStatus(statusCode) {
		cw.commit(false)
	}
}

func (cw *compressResponseWriter) Write(b []byte) (int, error) {
	if cw.statusCode == 0 {
		cw.WriteHeader(http.StatusOK)
	}

	if !cw.decided {
		if !shouldCompressType(cw.Header().Get("Content-Type")) {
			cw.commit(false)
		} else {
			cw.buf.Write(b)
			if cw.buf.Len() < cw.minSize {
				return len(b), nil
			}
			if err := cw.commit(true); err != nil {
				return 0, err
			}
			return len(b), nil
		}
	}

	if cw.compressed {
		return cw.writer.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

// commit 写出响应头以及已缓冲的内容
func (cw *compressResponseWriter) commit(compress bool) error {
	if cw.decided {
		return nil
	}
	cw.decided = true
	cw.compressed = compress

	status := cw.statusCode
	if status == 0 {
		status = http.StatusOK
	}

	if compress {
		cw.Header().Set("Content-Encoding", string(cw.encoding))
		cw.Header().Del("Content-Length")
		cw.ResponseWriter.WriteHeader(status)

		writer, err := cw.compressor.Compress(cw.ResponseWriter)
		if err != nil {
			return err
		}
		cw.writer = writer
		if cw.buf.Len() > 0 {
			_, err = cw.writer.Write(cw.buf.Bytes())
		}
		cw.buf.Reset()
		return err
	}

	cw.ResponseWriter.WriteHeader(status)
	if cw.buf.Len() > 0 {
		_, err := cw.ResponseWriter.Write(cw.buf.Bytes())
		cw.buf.Reset()
		return err
	}
	return nil
}

// finish 处理器返回后调用
func (cw *compressResponseWriter) finish() {
	if !cw.decided {
		if cw.statusCode == 0 && cw.buf.Len() == 0 {
			return
		}
		// 未达到 MinSize，原样输出
		cw.commit(false)
		return
	}
	if cw.writer != nil {
		cw.writer.Close()
	}
}

// Flush 实现 http.Flusher
func (cw *compressResponseWriter) Flush() {
	if !cw.decided && cw.statusCode != 0 {
		cw.commit(shouldCompressType(cw.Header().Get("Content-Type")) && shouldCompressForStatus(cw.statusCode))
	}
	if f, ok := cw.writer.(interface{ Flush() error }); ok {
		f.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack 实现 http.Hijacker
func (cw *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := cw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func shouldCompressForStatus(status int) bool {
	return status >= http.StatusOK &&
		status != http.StatusNoContent &&
		status != http.StatusNotModified &&
		status != http.StatusPartialContent
}

var compressiblePrefixes = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/xml",
	"application/problem+json",
}

func shouldCompressType(contentType string) bool {
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}
