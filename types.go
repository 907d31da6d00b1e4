package semdex

import (
	"context"
	"time"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/usecase/calibration"
)

// Paragraph is one embedded transcript paragraph supplied to the client.
// Embeddings must be unit-normalized; the index build rejects vectors whose
// norm deviates beyond tolerance.
type Paragraph struct {
	ID            string
	CallID        string
	Region        string
	Segment       string
	Text          string
	Embedding     []float32
	SentenceCount int
}

// Match is one paragraph deemed relevant for a concept.
type Match struct {
	ParagraphID string
	ConceptID   string
	CallID      string
	Region      string
	Segment     string
	Similarity  float64
	PatternID   string
}

// Hit is one raw nearest-neighbor result from Search.
type Hit struct {
	ParagraphID string
	Region      string
	Similarity  float64
	Text        string
}

// Exposure carries the call-level indicators for one (call, concept) pair.
// AvgSimilarity and SentenceCoverage are nil when undefined, never zero.
type Exposure struct {
	CallID           string
	ConceptID        string
	Segment          string
	Exposure         float64
	AvgSimilarity    *float64
	Intensity        float64
	NParagraphs      int
	NMatches         int
	MatchedSentences int
	SentenceCoverage *float64
}

// Threshold is a calibrated per-concept similarity cutoff.
type Threshold struct {
	ConceptID    string
	Value        float64
	Version      string
	CalibratedAt time.Time
}

// LabeledPair is one human-labeled (paragraph, similarity) observation for
// calibration.
type LabeledPair struct {
	ParagraphID string
	Similarity  float64
	Relevant    bool
}

// ROCPoint is one point of a calibration sweep.
type ROCPoint struct {
	Threshold float64
	TPR       float64
	FPR       float64
	Precision float64
	F1        float64
	YoudenJ   float64
}

// Calibration is one completed threshold calibration.
type Calibration struct {
	Threshold  Threshold
	Curve      []ROCPoint
	AUC        float64
	Relevant   int
	Irrelevant int
}

// RegionInfo describes one built region index.
type RegionInfo struct {
	Region    string
	Dimension int
	Size      int
}

// EmbeddingResult carries the embedding vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text. Implementations wrap a real provider; the engine
// only embeds concept query patterns and free-text search queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is an optional extension of Embedder for providers with
// native batch support. When absent, patterns are embedded one by one.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

func paragraphToRecord(p Paragraph) domain.ParagraphRecord {
	return domain.ParagraphRecord{
		ID:            p.ID,
		CallID:        p.CallID,
		Region:        domain.Region(p.Region),
		Segment:       domain.SegmentType(p.Segment),
		Text:          p.Text,
		Embedding:     p.Embedding,
		SentenceCount: p.SentenceCount,
	}
}

func matchFromDomain(m domain.ScoredMatch) Match {
	return Match{
		ParagraphID: m.ParagraphID,
		ConceptID:   m.ConceptID,
		CallID:      m.CallID,
		Region:      string(m.Region),
		Segment:     string(m.Segment),
		Similarity:  m.Similarity,
		PatternID:   m.PatternID,
	}
}

func exposureFromDomain(r domain.ExposureRecord) Exposure {
	return Exposure{
		CallID:           r.CallID,
		ConceptID:        r.ConceptID,
		Segment:          string(r.Segment),
		Exposure:         r.Exposure,
		AvgSimilarity:    r.AvgSimilarity,
		Intensity:        r.Intensity,
		NParagraphs:      r.NParagraphs,
		NMatches:         r.NMatches,
		MatchedSentences: r.MatchedSentences,
		SentenceCoverage: r.SentenceCoverage,
	}
}

func exposureToDomain(e Exposure) domain.ExposureRecord {
	return domain.ExposureRecord{
		CallID:           e.CallID,
		ConceptID:        e.ConceptID,
		Segment:          domain.SegmentType(e.Segment),
		Exposure:         e.Exposure,
		AvgSimilarity:    e.AvgSimilarity,
		Intensity:        e.Intensity,
		NParagraphs:      e.NParagraphs,
		NMatches:         e.NMatches,
		MatchedSentences: e.MatchedSentences,
		SentenceCoverage: e.SentenceCoverage,
	}
}

func thresholdFromDomain(t domain.Threshold) Threshold {
	return Threshold{
		ConceptID:    t.ConceptID,
		Value:        t.Value,
		Version:      t.Version,
		CalibratedAt: t.CalibratedAt,
	}
}

func calibrationFromResult(r calibration.Result) Calibration {
	curve := make([]ROCPoint, len(r.Curve))
	for i, p := range r.Curve {
		curve[i] = ROCPoint{
			Threshold: p.Threshold,
			TPR:       p.TPR,
			FPR:       p.FPR,
			Precision: p.Precision,
			F1:        p.F1,
			YoudenJ:   p.YoudenJ,
		}
	}
	return Calibration{
		Threshold:  thresholdFromDomain(r.Threshold),
		Curve:      curve,
		AUC:        r.AUC,
		Relevant:   r.Relevant,
		Irrelevant: r.Irrelevant,
	}
}
