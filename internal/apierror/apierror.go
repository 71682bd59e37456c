// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Erreur de validation", Fields: fields}
}

// LineError names the devis or situation line a rejected computation
// stumbled on.
type LineError struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	ID     string `json:"id,omitempty"`
}

func NewLine(msg, kind, id string) *LineError {
	return &LineError{Detail: msg, Kind: kind, ID: id}
}
