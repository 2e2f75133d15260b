// Package apperr 定义了会话核心对外暴露的错误分类。
//
// 每个失败都会以 *Error 的形式返回，调用方通过 errors.Is(err, apperr.ErrBusy)
// 或 apperr.KindOf(err) 判断类别。
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误类别。
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindBusy              Kind = "Busy"
	KindTimeout           Kind = "Timeout"
	KindMalformedResponse Kind = "MalformedResponse"
	KindUpstreamFailure   Kind = "UpstreamFailure"
	// KindCanceled 表示调用被取消，其结果已被丢弃。
	KindCanceled Kind = "Canceled"
	KindInternal Kind = "Internal"
)

// Error 携带类别、面向用户的消息以及底层原因。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按类别匹配，使 errors.Is(err, ErrBusy) 对任意 Busy 错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// 哨兵错误，仅用于 errors.Is 比较。
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrBusy              = &Error{Kind: KindBusy}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrUpstreamFailure   = &Error{Kind: KindUpstreamFailure}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

// New 创建一个不带底层原因的错误。
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 创建一个带底层原因的错误。
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Malformed(err error, format string, args ...interface{}) *Error {
	return Wrap(KindMalformedResponse, err, format, args...)
}

func Upstream(err error, format string, args ...interface{}) *Error {
	return Wrap(KindUpstreamFailure, err, format, args...)
}

// KindOf 返回错误的类别；非 *Error 的错误视为 Internal。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf 返回适合展示给用户的消息。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}

// FromContext 根据上下文状态重新归类一次出站调用的错误：
// 截止时间到期 -> Timeout，调用方取消 -> Canceled，已分类的错误原样返回，
// 其余一律视为 UpstreamFailure 并保留上游消息。
func FromContext(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Wrap(KindTimeout, err, "%s timed out", op)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return Wrap(KindCanceled, err, "%s canceled", op)
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Upstream(err, "%s failed", op)
}

// HTTPStatus 把错误类别映射为 HTTP 状态码。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy, KindCanceled:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindMalformedResponse, KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
