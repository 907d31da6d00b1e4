package domain

// Region is a geographic partition of the corpus, each with its own vector
// index. The region set is configuration-defined (e.g. SP500, STOXX600),
// never hard-coded.
type Region string

// SegmentType identifies the transcript section a paragraph belongs to.
type SegmentType string

const (
	// SegmentManagement marks prepared-remarks paragraphs.
	SegmentManagement SegmentType = "management"
	// SegmentQA marks question-and-answer paragraphs.
	SegmentQA SegmentType = "qa"
)

// ParagraphRecord is one embedded transcript paragraph. Records are immutable
// once produced by the embedding stage; the index build process owns them.
type ParagraphRecord struct {
	ID            string
	CallID        string
	Region        Region
	Segment       SegmentType
	Text          string
	Embedding     []float32
	SentenceCount int
}

// CallCounts holds per-call denominators for indicator aggregation.
// Segments is optional; it is required only for segment-split aggregation.
type CallCounts struct {
	Paragraphs int
	Sentences  int
	Segments   map[SegmentType]SegmentCounts
}

// SegmentCounts holds per-segment denominators within one call.
type SegmentCounts struct {
	Paragraphs int
	Sentences  int
}
