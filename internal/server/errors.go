package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorClass maps a family of errors to one HTTP status and payload type.
type errorClass struct {
	status  int
	kind    string
	message string
	matches []error
}

// errorClasses is checked in order; the first class with a matching error
// wins.
var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{ErrUnauthorized, domain.ErrUnauthenticated}},
	{http.StatusForbidden, "not_owner", "caller does not own this kitty", []error{domain.ErrNotOwner}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{ErrForbidden}},
	{http.StatusNotFound, "not_found", "not found", []error{ErrNotFound, domain.ErrNotFound}},
	{http.StatusConflict, "capacity_exceeded", "owner is at capacity", []error{domain.ErrCapacityExceeded}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrRateLimited}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		ErrServiceUnavailable, domain.ErrLockUnavailable, domain.ErrIDSpaceExhausted,
	}},
}

// validationSentinels become single-field validation errors. The field name
// is the code without its invalid_ prefix.
var validationSentinels = []error{
	ErrInvalidRequest,
	domain.ErrInvalidPrincipal,
	domain.ErrInvalidKittyID,
	domain.ErrInvalidPrice,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalError()
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors)
	}
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			return http.StatusBadRequest, validationPayload([]ValidationError{{
				Field:   validationField(code),
				Code:    code,
				Message: strings.ReplaceAll(code, "_", " "),
			}})
		}
	}

	for _, class := range errorClasses {
		for _, target := range class.matches {
			if errors.Is(err, target) {
				return class.status, errorPayload{Type: class.kind, Message: class.message}
			}
		}
	}
	return internalError()
}

// classifyErrorForLog returns the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func internalError() (int, errorPayload) {
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

func validationPayload(errs []ValidationError) errorPayload {
	return errorPayload{Type: "validation_error", Message: "validation error", Errors: errs}
}

func validationField(code string) string {
	if code == ErrInvalidRequest.Error() {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}
