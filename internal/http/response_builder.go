// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors to status codes in one place.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lifelog/internal/auth"
	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/localstore"
	"lifelog/internal/providers"
	"lifelog/internal/session"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header sets a custom header on the response.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// StatusCode returns the configured status code.
func (b *ResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Send writes the response. A nil body writes no content.
func (b *ResponseBuilder) Send(w http.ResponseWriter) {
	for key, value := range b.headers {
		w.Header().Set(key, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates an error response with the given status and message.
func ErrorResponse(status int, message string) *ResponseBuilder {
	return NewResponse().Status(status).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

func ValidationError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

var errBadBody = errors.New("invalid request body")

// validationErrors are reported to the client with their own message.
var validationErrors = []error{
	core.ErrEmptyTitle,
	core.ErrInvalidEventType,
	core.ErrInvalidTopic,
	core.ErrInvalidDay,
	core.ErrEmptyHabitID,
	core.ErrInvalidAmount,
	localstore.ErrEmptyGoalName,
	localstore.ErrInvalidClock,
	docstore.ErrEmptyID,
	auth.ErrWeakPassword,
	auth.ErrInvalidEmail,
}

// ErrorFor maps err to a response. The second result reports whether the
// error was unexpected and should be logged.
func ErrorFor(err error) (*ResponseBuilder, bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return ValidationError(v.Error()), false
		}
	}
	switch {
	case errors.Is(err, errBadBody):
		return BadRequestError(errBadBody.Error()), false
	case errors.Is(err, providers.ErrNoIdentity):
		return UnauthorizedError("not signed in"), false
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return UnauthorizedError(err.Error()), false
	case errors.Is(err, session.ErrLoginFailed):
		return UnauthorizedError(session.ErrLoginFailed.Error()), false
	case errors.Is(err, session.ErrSignupFailed):
		return BadRequestError(session.ErrSignupFailed.Error()), false
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, localstore.ErrGoalNotFound):
		return NotFoundError("not found"), false
	case errors.Is(err, providers.ErrNotConfirmed):
		return ErrorResponse(http.StatusAccepted, "write accepted, not yet confirmed"), false
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, "timed out"), true
	default:
		return InternalError(), true
	}
}

func isUnconfirmed(err error) bool {
	return errors.Is(err, providers.ErrNotConfirmed)
}

// writeStatus is the status for a successful write: ok when the write was
// confirmed or accepted, 202 when confirmation timed out.
func writeStatus(err error, ok int) int {
	if isUnconfirmed(err) {
		return http.StatusAccepted
	}
	return ok
}
