// Package indicator aggregates scored matches into call-level concept
// exposure indicators.
package indicator

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Options configures one aggregation run.
type Options struct {
	// Concepts forces records for these concepts even when a concept has
	// zero matches anywhere. Concepts present in the match set are always
	// included regardless.
	Concepts []string
	// SplitBySegment additionally emits per-segment records for every call
	// whose denominators carry segment counts.
	SplitBySegment bool
}

// Aggregator folds scored matches into exposure records. It is pure: the
// output depends only on the inputs, never on accumulation order, so the
// panel stays reproducible across runs.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// cell accumulates one (call, concept, segment) group.
type cell struct {
	nMatches         int
	sumSimilarity    float64
	matchedSentences int
}

// Aggregate produces one record per (call, concept) over every call in the
// denominator map, zero-valued when the call has no matches. A match whose
// call is missing from denominators is an error: silently inventing a
// denominator would corrupt the intensity measure.
func (a *Aggregator) Aggregate(matches []domain.ScoredMatch, denominators map[string]domain.CallCounts, opts Options) ([]domain.ExposureRecord, error) {
	concepts := map[string]struct{}{}
	for _, c := range opts.Concepts {
		concepts[c] = struct{}{}
	}

	type groupKey struct {
		callID    string
		conceptID string
		segment   domain.SegmentType
	}
	cells := map[groupKey]*cell{}

	for _, m := range matches {
		if _, ok := denominators[m.CallID]; !ok {
			return nil, &domain.UnknownCallDenominatorError{ConceptID: m.ConceptID, CallID: m.CallID}
		}
		concepts[m.ConceptID] = struct{}{}

		keys := []groupKey{{callID: m.CallID, conceptID: m.ConceptID}}
		if opts.SplitBySegment {
			keys = append(keys, groupKey{callID: m.CallID, conceptID: m.ConceptID, segment: m.Segment})
		}
		for _, k := range keys {
			c := cells[k]
			if c == nil {
				c = &cell{}
				cells[k] = c
			}
			c.nMatches++
			c.sumSimilarity += m.Similarity
			c.matchedSentences += m.SentenceCount
		}
	}

	conceptList := make([]string, 0, len(concepts))
	for c := range concepts {
		conceptList = append(conceptList, c)
	}
	sort.Strings(conceptList)

	callList := make([]string, 0, len(denominators))
	for callID := range denominators {
		callList = append(callList, callID)
	}
	sort.Strings(callList)

	var records []domain.ExposureRecord
	for _, conceptID := range conceptList {
		for _, callID := range callList {
			counts := denominators[callID]

			records = append(records, buildRecord(
				callID, conceptID, "",
				cells[groupKey{callID: callID, conceptID: conceptID}],
				counts.Paragraphs, counts.Sentences,
			))

			if !opts.SplitBySegment {
				continue
			}
			segments := make([]domain.SegmentType, 0, len(counts.Segments))
			for seg := range counts.Segments {
				segments = append(segments, seg)
			}
			sort.Slice(segments, func(i, j int) bool { return segments[i] < segments[j] })
			for _, seg := range segments {
				sc := counts.Segments[seg]
				records = append(records, buildRecord(
					callID, conceptID, seg,
					cells[groupKey{callID: callID, conceptID: conceptID, segment: seg}],
					sc.Paragraphs, sc.Sentences,
				))
			}
		}
	}

	a.logger.Debug("Aggregation complete",
		zap.Int("matches", len(matches)),
		zap.Int("calls", len(callList)),
		zap.Int("concepts", len(conceptList)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func buildRecord(callID, conceptID string, segment domain.SegmentType, c *cell, paragraphs, sentences int) domain.ExposureRecord {
	rec := domain.ExposureRecord{
		CallID:      callID,
		ConceptID:   conceptID,
		Segment:     segment,
		NParagraphs: paragraphs,
	}
	if c == nil || c.nMatches == 0 {
		// Zero-valued record: exposure 0, AvgSimilarity stays nil.
		return rec
	}

	rec.Exposure = 1
	rec.NMatches = c.nMatches
	avg := c.sumSimilarity / float64(c.nMatches)
	rec.AvgSimilarity = &avg
	if paragraphs > 0 {
		rec.Intensity = float64(c.nMatches) / float64(paragraphs)
	}
	rec.MatchedSentences = c.matchedSentences
	if sentences > 0 {
		coverage := float64(c.matchedSentences) / float64(sentences)
		rec.SentenceCoverage = &coverage
	}
	return rec
}
