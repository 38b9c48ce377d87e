package apierrors

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Code 表示统一的 relay 错误码。
type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeMethodNotAllowed Code = "METHOD_NOT_ALLOWED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUpstreamProtocol Code = "UPSTREAM_PROTOCOL"
	CodeTransport        Code = "TRANSPORT"
	CodeNotConfigured    Code = "NOT_CONFIGURED"
	CodeRetryLater       Code = "RETRY_LATER"
)

var httpStatusMap = map[Code]int{
	CodeInvalidArgument:  http.StatusBadRequest,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeNotFound:         http.StatusNotFound,
	CodeUpstreamProtocol: http.StatusBadGateway,
	CodeTransport:        http.StatusInternalServerError,
	CodeNotConfigured:    http.StatusInternalServerError,
	CodeRetryLater:       http.StatusTooManyRequests,
}

// responseTextLimit 限制回传给调用方的上游原文长度。
const responseTextLimit = 200

// Error 表示带统一错误码的本地失败。
type Error struct {
	Code          Code
	Message       string
	Details       string
	ResponseText  string
	MissingFields []string
	retryAfter    time.Duration
}

// New 创建一个新的错误。
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Required 返回 "<field> is required" 校验错误。
func Required(field string) *Error {
	return New(CodeInvalidArgument, field+" is required")
}

// Missing 返回列出缺失字段的校验错误。
func Missing(fields []string) *Error {
	return &Error{
		Code:          CodeInvalidArgument,
		Message:       "missing required fields: " + strings.Join(fields, ", "),
		MissingFields: append([]string(nil), fields...),
	}
}

// UpstreamProtocol 描述上游返回了无法解析的响应体，原文截断到 200 字符。
func UpstreamProtocol(responseText string) *Error {
	return &Error{
		Code:         CodeUpstreamProtocol,
		Message:      "invalid response from upstream provider",
		Details:      "response body is not valid JSON",
		ResponseText: Truncate(responseText, responseTextLimit),
	}
}

// UpstreamTooLarge 描述上游响应体超过读取上限。
func UpstreamTooLarge() *Error {
	return &Error{
		Code:    CodeUpstreamProtocol,
		Message: "upstream response too large",
		Details: "response body too large",
	}
}

// Transport 返回对外统一的传输失败错误，细节只写日志。
func Transport() *Error {
	return New(CodeTransport, "internal server error")
}

// WithRetryAfter 设置 Retry-After 提示，返回自身方便链式调用。
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.retryAfter = d
	return e
}

// RetryAfterHint 以秒为单位返回 Retry-After 提示文本。
func (e *Error) RetryAfterHint() string {
	if e == nil || e.retryAfter <= 0 {
		return ""
	}
	seconds := int((e.retryAfter + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// FromError 尝试从通用 error 中解析 relay 错误。
func FromError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HTTPStatus 返回对应的 HTTP 状态码，未知错误默认 500。
func HTTPStatus(code Code) int {
	if status, ok := httpStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RequiresRetryAfter 标记是否必须携带 Retry-After 头。
func RequiresRetryAfter(code Code) bool {
	return code == CodeRetryLater
}

// Truncate 按 rune 截断字符串，避免切断多字节字符。
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
