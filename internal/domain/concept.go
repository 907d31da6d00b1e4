package domain

import "time"

// QueryPattern is one concept-defining phrase with its embedding.
type QueryPattern struct {
	ID        string
	ConceptID string
	Text      string
	Embedding []float32
}

// ConceptQuerySet holds the ordered set of query patterns defining a concept.
// Order does not affect scoring; it only makes logging reproducible.
type ConceptQuerySet struct {
	ConceptID   string
	Description string
	Patterns    []QueryPattern
}

// Threshold is a calibrated per-concept similarity cutoff τ. Computed
// offline, versioned, and read-only during a retrieval run.
type Threshold struct {
	ConceptID    string    `json:"concept_id"`
	Value        float64   `json:"value"`
	Version      string    `json:"version"`
	CalibratedAt time.Time `json:"calibrated_at,omitzero"`
}

// ScoredMatch is one relevant paragraph for a concept. If several patterns
// matched the paragraph, only the maximum similarity is retained and
// PatternID names the pattern that produced it.
type ScoredMatch struct {
	ParagraphID   string
	ConceptID     string
	CallID        string
	Region        Region
	Segment       SegmentType
	Similarity    float64
	PatternID     string
	SentenceCount int
}
