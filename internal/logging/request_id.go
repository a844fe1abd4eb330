package logging

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}

// NewRequestID 生成按时间排序的请求ID
func NewRequestID() string {
	return ulid.Make().String()
}

// ContextWithRequestID 把请求ID放入 context
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 取出请求ID，不存在时返回空串
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
