package judge

import (
	"fmt"
	"net/http"
)

// APIError represents an error returned by the judgment service API.
type APIError struct {
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification.
	Type string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("judge: API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("judge: API error (status %d): %s", e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), and network
// errors (StatusCode 0 indicates no HTTP response was received).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// ContractViolationError reports a judgment response that could not be parsed
// or failed verdict validation. The call itself succeeded; the model broke the
// output contract.
type ContractViolationError struct {
	// Reason describes which part of the contract was violated.
	Reason string
	// RawResponse is the model output that failed validation, kept for the
	// audit log.
	RawResponse string
}

// Error implements the error interface.
func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("judge: contract violation: %s", e.Reason)
}
