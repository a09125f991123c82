package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// GatewayError is a classified failure rendered to clients as the uniform
// error body.
type GatewayError struct {
	Status     int
	Message    string
	Details    string
	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// StatusCode returns the HTTP status of the error.
func (e *GatewayError) StatusCode() int {
	return e.Status
}

// Body is the uniform JSON error shape.
type Body struct {
	Timestamp     string `json:"timestamp"`
	Status        int    `json:"status"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Path          string `json:"path"`
	CorrelationID string `json:"correlationId,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

// now is replaced in tests.
var now = time.Now

// Body builds the error body for r. Identifiers come from the request
// context when one is attached.
func (e *GatewayError) Body(r *http.Request) Body {
	msg := e.Details
	if msg == "" {
		msg = e.Message
	}
	b := Body{
		Timestamp: now().UTC().Format(time.RFC3339),
		Status:    e.Status,
		Error:     http.StatusText(e.Status),
		Message:   msg,
	}
	if r == nil {
		return b
	}
	b.Path = r.URL.Path
	if vc := variables.GetFromRequest(r); vc != nil {
		b.CorrelationID = vc.CorrelationID
		b.TraceID = vc.TraceID
		b.RequestID = vc.RequestID
	}
	return b
}

// WriteJSON writes the error as the uniform JSON body.
func (e *GatewayError) WriteJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e.Body(r))
}

// Common errors
var (
	ErrBadRequest = &GatewayError{
		Status:  http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrUnauthorized = &GatewayError{
		Status:  http.StatusUnauthorized,
		Message: "Authentication required",
	}

	ErrForbidden = &GatewayError{
		Status:  http.StatusForbidden,
		Message: "Access denied",
	}

	ErrNotFound = &GatewayError{
		Status:  http.StatusNotFound,
		Message: "No route matches the request path",
	}

	ErrPayloadTooLarge = &GatewayError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: "Request body exceeds the maximum allowed size",
	}

	ErrUnsupportedMediaType = &GatewayError{
		Status:  http.StatusUnsupportedMediaType,
		Message: "Unsupported content type",
	}

	ErrTooManyRequests = &GatewayError{
		Status:  http.StatusTooManyRequests,
		Message: "Rate limit exceeded",
	}

	ErrInternalServer = &GatewayError{
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
	}

	ErrBadGateway = &GatewayError{
		Status:  http.StatusBadGateway,
		Message: "Upstream service unreachable",
	}

	ErrServiceUnavailable = &GatewayError{
		Status:  http.StatusServiceUnavailable,
		Message: "Service temporarily unavailable",
	}

	ErrGatewayTimeout = &GatewayError{
		Status:  http.StatusGatewayTimeout,
		Message: "Upstream service timed out",
	}
)

// New creates a new GatewayError
func New(status int, message string) *GatewayError {
	return &GatewayError{
		Status:  status,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, status int, message string) *GatewayError {
	return &GatewayError{
		Status:     status,
		Message:    message,
		underlying: err,
	}
}

// WithDetails returns a copy carrying a client-facing detail message.
func (e *GatewayError) WithDetails(details string) *GatewayError {
	return &GatewayError{
		Status:     e.Status,
		Message:    e.Message,
		Details:    details,
		underlying: e.underlying,
	}
}

// AsGatewayError reports whether err is or wraps a GatewayError.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

type statusCoder interface {
	StatusCode() int
}

// StatusFromError infers the response status for an unexpected failure.
// Client-class statuses exposed by the error are kept; everything else is 500.
func StatusFromError(err error) int {
	if ge, ok := AsGatewayError(err); ok {
		return ge.Status
	}
	var sc statusCoder
	if stderrors.As(err, &sc) {
		switch s := sc.StatusCode(); s {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return s
		}
	}
	return http.StatusInternalServerError
}

// FromError classifies err into a GatewayError.
func FromError(err error) *GatewayError {
	if ge, ok := AsGatewayError(err); ok {
		return ge
	}
	status := StatusFromError(err)
	if status == http.StatusInternalServerError {
		return Wrap(err, status, ErrInternalServer.Message)
	}
	return Wrap(err, status, http.StatusText(status))
}
