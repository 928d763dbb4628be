package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Code classifies an API error. Handlers raise a classified error as soon as a
// precondition fails (missing auth, missing record, missing access) instead of
// returning sentinel values, so callers can branch on the classification.
type Code string

const (
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeInvalidInput   Code = "invalid_input"
	CodeRateLimited    Code = "rate_limited"
	CodeUnavailable    Code = "service_unavailable"
	CodeNotImplemented Code = "not_implemented"
	CodeInternal       Code = "internal"
)

// Error is the classified error carried through handlers and services.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"error"`
	Detail  map[string]any `json:"detail,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// GetCode extracts the classification from any error. Unclassified errors are
// reported as internal.
func GetCode(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Message: "Authentication required"}
}

// Forbidden carries the specific permission key that was missing, when known.
func Forbidden(permission string) *Error {
	e := &Error{Code: CodeForbidden, Message: "Permission denied"}
	if permission != "" {
		e.Detail = map[string]any{"permission": permission}
	}
	return e
}

// NotFound names the entity type and identifier that could not be resolved.
func NotFound(entity string, id any) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Detail:  map[string]any{"entity": entity, "id": fmt.Sprint(id)},
	}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func Invalid(message string, detail map[string]any) *Error {
	return &Error{Code: CodeInvalidInput, Message: message, Detail: detail}
}

func RateLimited() *Error {
	return &Error{Code: CodeRateLimited, Message: "Too many requests"}
}

// Unavailable names the external service that could not be reached.
func Unavailable(service string, cause error) *Error {
	return &Error{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("%s is unavailable", service),
		Detail:  map[string]any{"service": service},
		cause:   cause,
	}
}

func NotImplemented(feature string) *Error {
	return &Error{
		Code:    CodeNotImplemented,
		Message: fmt.Sprintf("%s is not implemented", feature),
		Detail:  map[string]any{"feature": feature},
	}
}

// Internal wraps an unexpected error. The cause message is only exposed to
// clients when gin runs in debug mode.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "Internal server error", cause: cause}
}

var statusByCode = map[Code]int{
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeForbidden:      http.StatusForbidden,
	CodeNotFound:       http.StatusNotFound,
	CodeConflict:       http.StatusConflict,
	CodeInvalidInput:   http.StatusBadRequest,
	CodeRateLimited:    http.StatusTooManyRequests,
	CodeUnavailable:    http.StatusServiceUnavailable,
	CodeNotImplemented: http.StatusNotImplemented,
	CodeInternal:       http.StatusInternalServerError,
}

// HTTPStatus maps a classification to its response status.
func HTTPStatus(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Respond writes the classified error as the JSON response body. Unclassified
// errors become a generic 500 without leaking the cause in release mode.
func Respond(c *gin.Context, err error) {
	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal(err)
	}

	body := gin.H{"code": ae.Code, "error": ae.Message}
	if ae.Detail != nil {
		body["detail"] = ae.Detail
	}
	if ae.cause != nil && gin.Mode() != gin.ReleaseMode {
		body["cause"] = ae.cause.Error()
	}

	c.AbortWithStatusJSON(HTTPStatus(ae.Code), body)
}
