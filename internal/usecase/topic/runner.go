// Package topic orchestrates full measurement runs: concept definitions in,
// exposure records out.
package topic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
	"github.com/kailas-cloud/semdex/internal/usecase/indicator"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
)

// ConceptSource loads concept definitions.
type ConceptSource interface {
	List() ([]string, error)
	Load(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error)
}

// ThresholdSource resolves the current threshold for a concept.
type ThresholdSource interface {
	Get(ctx context.Context, conceptID string) (domain.Threshold, error)
}

// Retriever runs one concept's patterns against the corpus.
type Retriever interface {
	Retrieve(concept domain.ConceptQuerySet, opts retrieval.Options) ([]domain.ScoredMatch, error)
}

// Aggregator folds matches into exposure records.
type Aggregator interface {
	Aggregate(matches []domain.ScoredMatch, denominators map[string]domain.CallCounts, opts AggregateOptions) ([]domain.ExposureRecord, error)
}

var _ Aggregator = (*indicator.Aggregator)(nil)

// AggregateOptions aliases the indicator package's options so the wired
// aggregator satisfies Aggregator directly, without an adapter at every
// composition root.
type AggregateOptions = indicator.Options

// DenominatorSource provides per-call aggregation denominators.
type DenominatorSource interface {
	CallCounts() map[string]domain.CallCounts
}

// Options configures one measurement run.
type Options struct {
	// KPerPattern is forwarded to every per-pattern search.
	KPerPattern int
	// Segment restricts retrieval to one transcript section.
	Segment *domain.SegmentType
	// SplitBySegment emits per-segment records alongside overall ones.
	SplitBySegment bool
	// Concurrency bounds parallel concept runs. Zero means sequential.
	Concurrency int
}

// Result is one completed measurement run.
type Result struct {
	Matches []domain.ScoredMatch
	Records []domain.ExposureRecord
	// MatchesByConcept counts matches per concept for run reporting.
	MatchesByConcept map[string]int
}

// Runner executes measurement runs over a set of concepts. Concepts are
// independent, so they run in parallel on a bounded worker pool; the output
// is re-sorted afterwards and does not depend on completion order.
type Runner struct {
	concepts     ConceptSource
	thresholds   ThresholdSource
	embedder     domain.BatchEmbedder
	retriever    Retriever
	aggregator   Aggregator
	denominators DenominatorSource
	logger       *zap.Logger
}

// NewRunner creates a measurement runner.
func NewRunner(
	concepts ConceptSource,
	thresholds ThresholdSource,
	embedder domain.BatchEmbedder,
	retriever Retriever,
	aggregator Aggregator,
	denominators DenominatorSource,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		concepts:     concepts,
		thresholds:   thresholds,
		embedder:     embedder,
		retriever:    retriever,
		aggregator:   aggregator,
		denominators: denominators,
		logger:       logger,
	}
}

// Run measures the given concepts. An empty concept list means every concept
// the source knows about.
func (r *Runner) Run(ctx context.Context, conceptIDs []string, opts Options) (Result, error) {
	if len(conceptIDs) == 0 {
		var err error
		conceptIDs, err = r.concepts.List()
		if err != nil {
			return Result{}, fmt.Errorf("list concepts: %w", err)
		}
	}

	var (
		mu         sync.Mutex
		allMatches []domain.ScoredMatch
		perConcept = make(map[string]int, len(conceptIDs))
		runErrs    []error
	)

	runOne := func(conceptID string) {
		start := time.Now()
		matches, err := r.runConcept(ctx, conceptID, opts)
		metrics.RetrievalDuration.WithLabelValues(conceptID).Observe(time.Since(start).Seconds())

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			metrics.RetrievalRunsTotal.WithLabelValues(conceptID, "error").Inc()
			runErrs = append(runErrs, fmt.Errorf("concept %s: %w", conceptID, err))
			return
		}
		metrics.RetrievalRunsTotal.WithLabelValues(conceptID, "ok").Inc()
		metrics.RetrievalMatchesTotal.WithLabelValues(conceptID).Add(float64(len(matches)))
		allMatches = append(allMatches, matches...)
		perConcept[conceptID] = len(matches)
	}

	if opts.Concurrency > 1 {
		pool, err := ants.NewPool(opts.Concurrency)
		if err != nil {
			return Result{}, fmt.Errorf("create worker pool: %w", err)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for _, conceptID := range conceptIDs {
			conceptID := conceptID
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				runOne(conceptID)
			}); err != nil {
				wg.Done()
				mu.Lock()
				runErrs = append(runErrs, fmt.Errorf("concept %s: submit: %w", conceptID, err))
				mu.Unlock()
			}
		}
		wg.Wait()
	} else {
		for _, conceptID := range conceptIDs {
			runOne(conceptID)
		}
	}

	if len(runErrs) > 0 {
		// Completion order is nondeterministic; sort for stable reporting.
		sort.Slice(runErrs, func(i, j int) bool { return runErrs[i].Error() < runErrs[j].Error() })
		return Result{}, errors.Join(runErrs...)
	}

	sort.Slice(allMatches, func(i, j int) bool {
		a, b := allMatches[i], allMatches[j]
		if a.ConceptID != b.ConceptID {
			return a.ConceptID < b.ConceptID
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.ParagraphID < b.ParagraphID
	})

	records, err := r.aggregator.Aggregate(allMatches, r.denominators.CallCounts(), AggregateOptions{
		Concepts:       conceptIDs,
		SplitBySegment: opts.SplitBySegment,
	})
	if err != nil {
		return Result{}, fmt.Errorf("aggregate: %w", err)
	}

	r.logger.Info("Measurement run complete",
		zap.Int("concepts", len(conceptIDs)),
		zap.Int("matches", len(allMatches)),
		zap.Int("records", len(records)),
	)
	return Result{Matches: allMatches, Records: records, MatchesByConcept: perConcept}, nil
}

// runConcept loads, embeds, and retrieves one concept.
func (r *Runner) runConcept(ctx context.Context, conceptID string, opts Options) ([]domain.ScoredMatch, error) {
	concept, fileTau, err := r.concepts.Load(conceptID)
	if err != nil {
		return nil, err
	}

	if err := r.embedPatterns(ctx, &concept); err != nil {
		return nil, err
	}

	tau := fileTau
	if tau == nil {
		stored, err := r.thresholds.Get(ctx, conceptID)
		if err != nil {
			return nil, err
		}
		tau = &stored
	}

	return r.retriever.Retrieve(concept, retrieval.Options{
		KPerPattern: opts.KPerPattern,
		Threshold:   tau,
		Segment:     opts.Segment,
	})
}

// embedPatterns fills pattern embeddings in one batch call and normalizes
// them. Indexed vectors are unit-norm, so queries must be too for the inner
// product to equal cosine similarity.
func (r *Runner) embedPatterns(ctx context.Context, concept *domain.ConceptQuerySet) error {
	if len(concept.Patterns) == 0 {
		return nil
	}

	texts := make([]string, len(concept.Patterns))
	for i, p := range concept.Patterns {
		texts[i] = p.Text
	}

	res, err := r.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed patterns: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return fmt.Errorf("embed patterns: got %d embeddings for %d patterns",
			len(res.Embeddings), len(texts))
	}

	for i := range concept.Patterns {
		vec, _ := domain.Normalize(res.Embeddings[i])
		concept.Patterns[i].Embedding = vec
	}
	return nil
}
