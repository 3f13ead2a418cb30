// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// ErrorResponse is the body rendered by middleware.ErrorHandler.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OKResponse acknowledges a command with no other result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ListResponse wraps list results.
type ListResponse struct {
	Items any `json:"items"`
}
