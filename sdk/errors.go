package sdk

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	_, err := sdk.CompileConstraints("a == ? AND b == ?", 10)
//	if errors.Is(err, sdk.ErrArgumentCount) {
//	    // more placeholders than arguments
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrArgumentCount is returned when a constraint template has more
	// placeholders than arguments
	ErrArgumentCount = errors.New("incorrect placeholder count")

	// ErrInvalidResponse is returned when a successful response does not
	// have the shape an operation expects
	ErrInvalidResponse = errors.New("invalid response from server")

	// ErrClientClosed is returned by operations on a closed client
	ErrClientClosed = errors.New("client is closed")
)

// ErrorType categorizes a ServiceError by the class of its HTTP status.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified status
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeClient represents 4xx responses
	ErrorTypeClient
	// ErrorTypeServer represents 5xx responses
	ErrorTypeServer
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeClient:
		return "client"
	case ErrorTypeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ServiceError is returned when the Flox server answers with a non-2xx
// status. Message holds the "message" field of the decoded body, or the
// decoded body itself when there is no such field.
//
// Example:
//
//	var svcErr *sdk.ServiceError
//	if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusForbidden {
//	    log.Printf("access denied: %s", svcErr.Message)
//	}
type ServiceError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int
	// Status is the full status line, e.g. "404 Not Found"
	Status string
	// Message is the error message extracted from the response body
	Message string
	// Body is the decoded response body
	Body interface{}
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("flox service error (status %d): %s", e.StatusCode, e.Message)
}

// Type classifies the error by status class
func (e *ServiceError) Type() ErrorType {
	switch {
	case e.StatusCode >= 500:
		return ErrorTypeServer
	case e.StatusCode >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeUnknown
	}
}

// IsNotFound returns true for 404 responses
func (e *ServiceError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// newServiceError builds a ServiceError from a decoded response.
func newServiceError(resp *Response) *ServiceError {
	return &ServiceError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    messageOf(resp.Body),
		Body:       resp.Body,
	}
}

// TransportError represents a network-level failure such as a refused
// connection, a DNS failure or a failed TLS handshake. The SDK never retries;
// the error surfaces as soon as it happens.
type TransportError struct {
	// Op is the operation that failed (e.g. "GET entities/Type/id")
	Op string
	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ArgumentError is returned by the constraint compiler when the template
// contains more "?" placeholders than there are arguments.
type ArgumentError struct {
	Placeholders int
	Arguments    int
}

// Error implements the error interface
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: template needs at least %d arguments, got %d",
		ErrArgumentCount, e.Placeholders, e.Arguments)
}

// Is makes errors.Is(err, ErrArgumentCount) work
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgumentCount
}

// IsNotFound checks if the error is a 404 from the service.
//
// Example:
//
//	entity, err := client.LoadEntity(ctx, "SaveGame", id)
//	if sdk.IsNotFound(err) {
//	    entity = sdk.NewEntity("SaveGame", id, nil)
//	}
func IsNotFound(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.IsNotFound()
	}
	return false
}

// IsServiceError reports whether err carries a ServiceError.
func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}

// IsTransportError reports whether err carries a TransportError.
func IsTransportError(err error) bool {
	var trErr *TransportError
	return errors.As(err, &trErr)
}
