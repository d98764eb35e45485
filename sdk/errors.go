package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	_, err := sdk.Get[Records](ctx, client, "airtable?maxRecords=10")
//	if errors.Is(err, sdk.ErrNotFound) {
//	    // Handle missing record
//	} else if errors.Is(err, sdk.ErrTimeout) {
//	    // Handle timeout
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("resource not found")

	// ErrTimeout is returned when a request times out
	ErrTimeout = errors.New("request timeout")

	// ErrServerError is returned for 5xx server errors
	ErrServerError = errors.New("server error")

	// ErrRateLimited is returned when the request is rate limited
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation is returned when input is rejected before any request is sent
	ErrValidation = errors.New("validation failed")
)

// ErrorType classifies every failure the access layer can surface.
// Callers switch on the type instead of probing concrete error values.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    switch sdkErr.Type {
//	    case sdk.ErrorTypeTransport:
//	        // Connection refused, DNS, reset
//	    case sdk.ErrorTypeProtocol:
//	        // Non-2xx response, see sdkErr.Status()
//	    case sdk.ErrorTypeValidation:
//	        // Bad input, nothing was sent
//	    }
//	}
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransport represents connection-level failures (refused, DNS, reset)
	ErrorTypeTransport
	// ErrorTypeTimeout represents a request that exceeded its time limit
	ErrorTypeTimeout
	// ErrorTypeProtocol represents a non-2xx HTTP response
	ErrorTypeProtocol
	// ErrorTypeValidation represents input rejected before a request was attempted
	ErrorTypeValidation
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the single error shape returned by the access layer. The
// concrete cause (*APIError, *NetworkError, *TimeoutError or
// *ValidationError) is reachable through errors.As.
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// RequestID is the upstream request identifier, if the server sent one
	RequestID string `json:"request_id,omitempty"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// Context provides additional context about the failed operation
	Context *ErrorContext `json:"context,omitempty"`
	// wrapped is the underlying error, if any
	wrapped error
}

// ErrorContext describes the request that failed.
type ErrorContext struct {
	// URL is the full URL of the failed request
	URL string `json:"url,omitempty"`
	// Method is the HTTP method used
	Method string `json:"method,omitempty"`
	// Attempts is the number of attempts made, including the first
	Attempts int `json:"attempts,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != nil && e.Context.URL != "" {
		return fmt.Sprintf("%s error: %s (%s %s)", e.Type, e.Message, e.Context.Method, e.Context.URL)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeTimeout:
		return target == ErrTimeout
	case ErrorTypeValidation:
		return target == ErrValidation
	case ErrorTypeProtocol:
		var apiErr *APIError
		if errors.As(e.wrapped, &apiErr) {
			switch {
			case target == ErrNotFound:
				return apiErr.IsNotFound()
			case target == ErrServerError:
				return apiErr.IsServerError()
			case target == ErrRateLimited:
				return apiErr.Status == http.StatusTooManyRequests
			}
		}
	}
	return false
}

// Status returns the HTTP status for protocol errors and 0 otherwise
func (e *Error) Status() int {
	var apiErr *APIError
	if errors.As(e.wrapped, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// WithContext adds error context
func (e *Error) WithContext(ctx *ErrorContext) *Error {
	e.Context = ctx
	return e
}

// NewError creates a new enhanced error
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

// APIError is the normalized shape of a non-2xx response. Data holds the
// decoded JSON body when the body parsed, otherwise the raw text.
//
// Example:
//
//	if apiErr, ok := sdk.AsAPIError(err); ok && apiErr.Status == 404 {
//	    log.Printf("missing: %s", apiErr.Message)
//	}
type APIError struct {
	// Message is taken from the body's "message" field when present
	Message string `json:"message"`
	// Status is the HTTP status code from the response
	Status int `json:"status,omitempty"`
	// Data is the parsed body, or the raw text when it was not JSON
	Data any `json:"data,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound returns true for 404 responses
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.Status >= 500
}

// IsClientError returns true if the error is a client error
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// ToError converts APIError to the enhanced Error type
func (e *APIError) ToError() *Error {
	return NewError(ErrorTypeProtocol, e.Message, e)
}

// NetworkError represents a connection-level failure such as connection
// refused, DNS resolution failure or a reset while reading the body.
type NetworkError struct {
	// Op is the operation that failed (e.g., "GET Table1", "reading response")
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToError converts NetworkError to the enhanced Error type
func (e *NetworkError) ToError() *Error {
	return NewError(ErrorTypeTransport, e.Error(), e)
}

// TimeoutError represents an attempt that exceeded its time limit.
type TimeoutError struct {
	// Op is the operation that timed out
	Op string
	// After is the limit that was exceeded
	After time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timeout during %s after %v", e.Op, e.After)
	}
	return fmt.Sprintf("timeout during %s", e.Op)
}

// ToError converts TimeoutError to the enhanced Error type
func (e *TimeoutError) ToError() *Error {
	return NewError(ErrorTypeTimeout, e.Error(), e)
}

// ValidationError reports input rejected before any request was sent.
type ValidationError struct {
	// Fields lists the offending inputs
	Fields []string
	// Message describes the problem
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

// ToError converts ValidationError to the enhanced Error type
func (e *ValidationError) ToError() *Error {
	return NewError(ErrorTypeValidation, e.Message, e)
}

// NewValidationError builds a validation-kind *Error.
func NewValidationError(message string, fields ...string) *Error {
	return (&ValidationError{Fields: fields, Message: message}).ToError()
}

// AsAPIError extracts the normalized response error, if err carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status
	}
	return 0
}

// IsNotFound checks if the error represents a 404 response.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var valErr *ValidationError
	return errors.Is(err, ErrValidation) || errors.As(err, &valErr)
}

// IsRetryable reports whether err carries a status code that the retry
// policy treats as transient. Transport failures and timeouts are not
// retried automatically.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	_, retryable := retryStatusCodes[apiErr.Status]
	return retryable
}
