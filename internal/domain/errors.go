package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConceptNotFound signals a missing concept definition.
	ErrConceptNotFound = errors.New("concept not found")
	// ErrDimensionMismatch signals an index build with inconsistent inputs.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnnormalizedEmbedding signals a vector violating the unit-norm invariant.
	ErrUnnormalizedEmbedding = errors.New("embedding is not unit-normalized")
	// ErrMissingThreshold signals retrieval attempted without a calibrated threshold.
	ErrMissingThreshold = errors.New("threshold not calibrated")
	// ErrInsufficientLabels signals calibration with a degenerate label set.
	ErrInsufficientLabels = errors.New("insufficient labels")
	// ErrUnknownCallDenominator signals aggregation over a call absent from the denominator map.
	ErrUnknownCallDenominator = errors.New("call missing from denominator map")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// These pipelines run unattended over large batches, so every fail-fast
// error carries the identifier that triggered it for precise re-run
// attribution.

// DimensionMismatchError wraps ErrDimensionMismatch with build details.
type DimensionMismatchError struct {
	Region     Region
	Embeddings int
	IDs        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: region %s: %d embeddings vs %d ids",
		ErrDimensionMismatch.Error(), e.Region, e.Embeddings, e.IDs)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// UnnormalizedEmbeddingError wraps ErrUnnormalizedEmbedding with the
// offending paragraph and its measured magnitude.
type UnnormalizedEmbeddingError struct {
	Region      Region
	ParagraphID string
	Norm        float64
}

func (e *UnnormalizedEmbeddingError) Error() string {
	return fmt.Sprintf("%s: region %s: paragraph %s has norm %.6f",
		ErrUnnormalizedEmbedding.Error(), e.Region, e.ParagraphID, e.Norm)
}

func (e *UnnormalizedEmbeddingError) Unwrap() error { return ErrUnnormalizedEmbedding }

// MissingThresholdError wraps ErrMissingThreshold with the concept id.
type MissingThresholdError struct {
	ConceptID string
}

func (e *MissingThresholdError) Error() string {
	return fmt.Sprintf("%s: concept %s", ErrMissingThreshold.Error(), e.ConceptID)
}

func (e *MissingThresholdError) Unwrap() error { return ErrMissingThreshold }

// InsufficientLabelsError wraps ErrInsufficientLabels with the class counts.
type InsufficientLabelsError struct {
	ConceptID  string
	Relevant   int
	Irrelevant int
}

func (e *InsufficientLabelsError) Error() string {
	return fmt.Sprintf("%s: concept %s: %d relevant, %d irrelevant",
		ErrInsufficientLabels.Error(), e.ConceptID, e.Relevant, e.Irrelevant)
}

func (e *InsufficientLabelsError) Unwrap() error { return ErrInsufficientLabels }

// UnknownCallDenominatorError wraps ErrUnknownCallDenominator with the
// concept and call that referenced the missing denominator.
type UnknownCallDenominatorError struct {
	ConceptID string
	CallID    string
}

func (e *UnknownCallDenominatorError) Error() string {
	return fmt.Sprintf("%s: concept %s: call %s",
		ErrUnknownCallDenominator.Error(), e.ConceptID, e.CallID)
}

func (e *UnknownCallDenominatorError) Unwrap() error { return ErrUnknownCallDenominator }
