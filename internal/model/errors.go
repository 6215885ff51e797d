package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an APIError. The set is closed: every error raised by the
// storefront layers carries exactly one of these.
type Kind int

const (
	KindInternal Kind = iota
	KindTransport
	KindServiceReported
	KindUserErrors
	KindNotFound
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServiceReported:
		return "service_reported"
	case KindUserErrors:
		return "user_errors"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Sentinel errors, one per kind.
// Use errors.Is() to check against these.
var (
	ErrTransport       = errors.New("transport failure")
	ErrServiceReported = errors.New("service reported error")
	ErrUserErrors      = errors.New("user errors present")
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrConflict        = errors.New("conflict")
)

// transportMessage is what shoppers see for any transport-level failure.
// The underlying cause is kept in Err for logs only.
const transportMessage = "Error receiving data from Shopify"

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Kind       Kind     `json:"-"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
	StatusCode int      `json:"-"` // HTTP status, not serialized
	Err        error    `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first APIError in err's chain.
// Errors that carry no APIError are internal.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// NewTransportError creates an error for network, read, or decode failures
// talking to the commerce platform.
func NewTransportError(err error) *APIError {
	return &APIError{
		Kind:       KindTransport,
		Code:       "TRANSPORT_ERROR",
		Message:    transportMessage,
		StatusCode: http.StatusInternalServerError,
		Err:        fmt.Errorf("%w: %v", ErrTransport, err),
	}
}

// NewServiceReportedError creates an error from a GraphQL errors list entry.
// The message is surfaced verbatim.
func NewServiceReportedError(message string) *APIError {
	return &APIError{
		Kind:       KindServiceReported,
		Code:       "SERVICE_ERROR",
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        ErrServiceReported,
	}
}

// NewUserError creates an error from a mutation's userErrors entry.
func NewUserError(message string, fields []string) *APIError {
	return &APIError{
		Kind:       KindUserErrors,
		Code:       "USER_ERROR",
		Message:    message,
		Fields:     fields,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        ErrUserErrors,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:       KindNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Kind:       KindValidation,
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Fields:     []string{field},
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewConflictError creates a 409 error for operations that collide with one
// already in flight.
func NewConflictError(reason string) *APIError {
	return &APIError{
		Kind:       KindConflict,
		Code:       "CONFLICT",
		Message:    reason,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
