package domain

// ExposureRecord carries the call-level concept indicators consumed by the
// downstream panel-construction stage. One record exists per distinct
// (call, concept) pair, or per (call, concept, segment) in split mode.
// Records are immutable once written.
type ExposureRecord struct {
	CallID    string
	ConceptID string
	// Segment is empty for overall records.
	Segment SegmentType

	// Exposure is binary topic presence: 1 if NMatches > 0, else 0.
	Exposure float64
	// AvgSimilarity is the mean similarity over matched paragraphs.
	// Nil (not zero) when the call has no matches.
	AvgSimilarity *float64
	// Intensity is NMatches / NParagraphs.
	Intensity float64

	NParagraphs int
	NMatches    int

	// MatchedSentences sums SentenceCount over matched paragraphs.
	MatchedSentences int
	// SentenceCoverage is MatchedSentences over the call's sentence total.
	// Nil when the sentence denominator is unknown.
	SentenceCoverage *float64
}
