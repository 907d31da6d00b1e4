package retrieval

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Options configures one concept retrieval run. The threshold is passed by
// value on every call, never read from process-wide state, so runs stay
// reproducible and parallel-safe.
type Options struct {
	// KPerPattern is the k handed to every per-pattern k-NN search.
	KPerPattern int
	// Threshold is the calibrated cutoff τ for this concept. Nil means no
	// calibration was performed and retrieval fails fast: a silent default
	// would admit everything or nothing and bias the measurement.
	Threshold *domain.Threshold
	// Segment, when set, restricts matches to one transcript section.
	// Filtering happens after the k-NN search; the k limit is re-applied
	// only at the final output so the threshold never sees a candidate set
	// starved by early truncation.
	Segment *domain.SegmentType
}

// ConceptRetriever runs every query pattern of a concept through the region
// retriever, deduplicates paragraphs across patterns, and applies the
// relevance threshold.
type ConceptRetriever struct {
	search     Searcher
	paragraphs ParagraphResolver
	logger     *zap.Logger
}

// NewConceptRetriever creates a concept retriever.
func NewConceptRetriever(search Searcher, paragraphs ParagraphResolver, logger *zap.Logger) *ConceptRetriever {
	return &ConceptRetriever{search: search, paragraphs: paragraphs, logger: logger}
}

// candidate is a deduplicated per-paragraph best hit during accumulation.
type candidate struct {
	hit       RegionHit
	patternID string
}

// Retrieve returns the scored matches for a concept. A paragraph matched by
// several patterns appears once with the maximum similarity; exact ties keep
// the lowest pattern id. A concept with zero patterns yields an empty
// result, not an error.
func (c *ConceptRetriever) Retrieve(concept domain.ConceptQuerySet, opts Options) ([]domain.ScoredMatch, error) {
	if opts.Threshold == nil {
		return nil, &domain.MissingThresholdError{ConceptID: concept.ConceptID}
	}
	tau := opts.Threshold.Value

	best := make(map[string]candidate)
	for _, pattern := range concept.Patterns {
		hits, err := c.search.Search(pattern.Embedding, opts.KPerPattern)
		if err != nil {
			return nil, fmt.Errorf("concept %s pattern %s: %w", concept.ConceptID, pattern.ID, err)
		}

		for _, hit := range hits {
			prev, seen := best[hit.ParagraphID]
			if !seen ||
				hit.Similarity > prev.hit.Similarity ||
				(hit.Similarity == prev.hit.Similarity && pattern.ID < prev.patternID) {
				best[hit.ParagraphID] = candidate{hit: hit, patternID: pattern.ID}
			}
		}
	}

	matches := make([]domain.ScoredMatch, 0, len(best))
	for _, cand := range best {
		if cand.hit.Similarity < tau {
			continue
		}

		rec, ok := c.paragraphs.Paragraph(cand.hit.ParagraphID)
		if !ok {
			return nil, fmt.Errorf("concept %s: paragraph %s not in catalog",
				concept.ConceptID, cand.hit.ParagraphID)
		}
		if opts.Segment != nil && rec.Segment != *opts.Segment {
			continue
		}

		matches = append(matches, domain.ScoredMatch{
			ParagraphID:   rec.ID,
			ConceptID:     concept.ConceptID,
			CallID:        rec.CallID,
			Region:        cand.hit.Region,
			Segment:       rec.Segment,
			Similarity:    cand.hit.Similarity,
			PatternID:     cand.patternID,
			SentenceCount: rec.SentenceCount,
		})
	}

	// Map iteration is randomized; re-sort so equal inputs give equal output.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ParagraphID < matches[j].ParagraphID
	})

	// The segment filter shrinks the candidate set after search, so the k
	// limit is re-enforced here, at final output only.
	if opts.Segment != nil && opts.KPerPattern > 0 && len(matches) > opts.KPerPattern {
		matches = matches[:opts.KPerPattern]
	}

	c.logger.Debug("Concept retrieval complete",
		zap.String("concept", concept.ConceptID),
		zap.Int("patterns", len(concept.Patterns)),
		zap.Float64("threshold", tau),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}
