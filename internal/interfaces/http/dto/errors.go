package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// Upstream error codes cover failures of the accounting system gateway.
const (
	// ErrCodeUpstreamTimeout is used when the upstream fetch exceeded its
	// deadline
	ErrCodeUpstreamTimeout = "ERR_UPSTREAM_TIMEOUT"
	// ErrCodeUpstreamAuth is used when the upstream session has expired
	ErrCodeUpstreamAuth = "ERR_UPSTREAM_AUTH"
	// ErrCodeUpstreamInvalid is used when the upstream payload could not be
	// parsed
	ErrCodeUpstreamInvalid = "ERR_UPSTREAM_INVALID"
	// ErrCodeUpstreamUnavailable is used when the upstream system cannot be
	// reached
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	// ErrCodeFetchSuperseded is used when a newer fetch for the same query
	// replaced this one
	ErrCodeFetchSuperseded = "ERR_FETCH_SUPERSEDED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,

	ErrCodeNotFound: http.StatusNotFound,

	ErrCodeUpstreamTimeout:     http.StatusGatewayTimeout,
	ErrCodeUpstreamAuth:        http.StatusUnauthorized,
	ErrCodeUpstreamInvalid:     http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrCodeFetchSuperseded:     http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
