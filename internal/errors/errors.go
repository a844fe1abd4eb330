package errors

import (
	stderrors "errors"
	"net/http"
)

type ErrorCode int

const (
	ErrCodeInvalidArgument ErrorCode = iota + 1
	ErrCodeUpstreamUnavailable
	ErrCodeInvalidConfig
	ErrCodeRateLimit
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrInvalidArgument     = &AppError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrUpstreamUnavailable = &AppError{Code: ErrCodeUpstreamUnavailable, Message: "upstream unavailable"}
	ErrInvalidConfig       = &AppError{Code: ErrCodeInvalidConfig, Message: "invalid config"}
	ErrRateLimit           = &AppError{Code: ErrCodeRateLimit, Message: "rate limited"}
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使包装后的错误仍能匹配哨兵
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建带错误码的错误
func New(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// InvalidArgument 参数错误
func InvalidArgument(message string) error {
	return New(ErrCodeInvalidArgument, message, nil)
}

// UpstreamUnavailable 上游获取失败且无可用缓存
func UpstreamUnavailable(err error) error {
	return New(ErrCodeUpstreamUnavailable, "upstream unavailable and no cached data", err)
}

// HTTPStatus 错误到HTTP状态码的映射
func HTTPStatus(err error) int {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
