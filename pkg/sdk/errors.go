package sdk

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the server's error codes.
// Use errors.Is() to check.
var (
	ErrConceptNotFound    = errors.New("concept not found")
	ErrMissingThreshold   = errors.New("missing threshold")
	ErrInsufficientLabels = errors.New("insufficient labels")
	ErrUnknownCall        = errors.New("unknown call")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrEmbeddingDisabled  = errors.New("embedding not configured")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
)

// codeSentinels maps server error codes to sentinel errors.
var codeSentinels = map[string]error{
	"concept_not_found":        ErrConceptNotFound,
	"missing_threshold":        ErrMissingThreshold,
	"insufficient_labels":      ErrInsufficientLabels,
	"unknown_call":             ErrUnknownCall,
	"dimension_mismatch":       ErrDimensionMismatch,
	"embedding_provider_error": ErrEmbeddingProvider,
	"embedding_not_configured": ErrEmbeddingDisabled,
	"validation_failed":        ErrValidation,
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("semdex api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps the server error code to a sentinel error.
func (e *APIError) Unwrap() error {
	if s, ok := codeSentinels[e.Code]; ok {
		return s
	}
	if e.StatusCode == 401 {
		return ErrUnauthorized
	}
	return nil
}
