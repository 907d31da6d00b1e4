package sdk

import "time"

// Match is one paragraph deemed relevant for a concept.
type Match struct {
	ParagraphID string  `json:"paragraph_id"`
	ConceptID   string  `json:"concept_id"`
	CallID      string  `json:"call_id"`
	Region      string  `json:"region"`
	Segment     string  `json:"segment,omitempty"`
	Similarity  float64 `json:"similarity"`
	PatternID   string  `json:"pattern_id"`
}

// ExposureRecord carries call-level concept indicators.
// AvgSimilarity and SentenceCoverage are nil when undefined.
type ExposureRecord struct {
	CallID           string   `json:"call_id"`
	ConceptID        string   `json:"concept_id"`
	Segment          string   `json:"segment,omitempty"`
	Exposure         float64  `json:"exposure"`
	AvgSimilarity    *float64 `json:"avg_similarity"`
	Intensity        float64  `json:"intensity"`
	NParagraphs      int      `json:"n_paragraphs"`
	NMatches         int      `json:"n_matches"`
	MatchedSentences int      `json:"matched_sentences"`
	SentenceCoverage *float64 `json:"sentence_coverage"`
}

// RetrieveOptions configures a single-concept retrieval.
type RetrieveOptions struct {
	// K is the per-pattern k-NN depth. Zero uses the server default.
	K int
	// Segment restricts retrieval to "management" or "qa".
	Segment string
}

// MeasureRequest configures a measurement run.
type MeasureRequest struct {
	// Concepts to measure. Empty means every concept the server knows.
	Concepts []string `json:"concepts,omitempty"`
	// KPerPattern overrides the per-pattern k-NN depth.
	KPerPattern int `json:"k_per_pattern,omitempty"`
	// SplitBySegment emits per-segment records alongside overall ones.
	SplitBySegment bool `json:"split_by_segment,omitempty"`
}

// MeasureResult is one completed measurement run.
type MeasureResult struct {
	Records          []ExposureRecord `json:"records"`
	MatchesByConcept map[string]int   `json:"matches_by_concept"`
}

// Threshold is a calibrated per-concept similarity cutoff.
type Threshold struct {
	ConceptID    string    `json:"concept_id"`
	Value        float64   `json:"value"`
	Version      string    `json:"version"`
	CalibratedAt time.Time `json:"calibrated_at,omitzero"`
}

// LabeledPair is one human-labeled (paragraph, similarity) observation.
type LabeledPair struct {
	ParagraphID string  `json:"paragraph_id"`
	Similarity  float64 `json:"similarity"`
	Relevant    bool    `json:"relevant"`
}

// ROCPoint is one point of a calibration sweep.
type ROCPoint struct {
	Threshold float64 `json:"threshold"`
	TPR       float64 `json:"tpr"`
	FPR       float64 `json:"fpr"`
	Precision float64 `json:"precision"`
	F1        float64 `json:"f1"`
	YoudenJ   float64 `json:"youden_j"`
}

// Calibration is one completed threshold calibration.
type Calibration struct {
	Threshold  Threshold  `json:"threshold"`
	Curve      []ROCPoint `json:"curve"`
	AUC        float64    `json:"auc"`
	Relevant   int        `json:"n_relevant"`
	Irrelevant int        `json:"n_irrelevant"`
}

// SearchHit is one raw nearest-neighbor result.
type SearchHit struct {
	ParagraphID string  `json:"paragraph_id"`
	CallID      string  `json:"call_id,omitempty"`
	Region      string  `json:"region"`
	Segment     string  `json:"segment,omitempty"`
	Similarity  float64 `json:"similarity"`
	Text        string  `json:"text,omitempty"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Regions map[string]int    `json:"regions"`
}
