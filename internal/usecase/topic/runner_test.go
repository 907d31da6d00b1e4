package topic

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
	"github.com/kailas-cloud/semdex/internal/usecase/indicator"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
)

type mockConceptSource struct {
	listFn func() ([]string, error)
	loadFn func(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error)
}

func (m *mockConceptSource) List() ([]string, error) {
	if m.listFn != nil {
		return m.listFn()
	}
	return nil, nil
}

func (m *mockConceptSource) Load(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error) {
	return m.loadFn(conceptID)
}

type mockThresholdSource struct {
	getFn func(ctx context.Context, conceptID string) (domain.Threshold, error)
}

func (m *mockThresholdSource) Get(ctx context.Context, conceptID string) (domain.Threshold, error) {
	if m.getFn != nil {
		return m.getFn(ctx, conceptID)
	}
	return domain.Threshold{}, &domain.MissingThresholdError{ConceptID: conceptID}
}

type mockBatchEmbedder struct {
	batchFn func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if m.batchFn != nil {
		return m.batchFn(ctx, texts)
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{3, 4}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

type mockRetriever struct {
	retrieveFn func(concept domain.ConceptQuerySet, opts retrieval.Options) ([]domain.ScoredMatch, error)
}

func (m *mockRetriever) Retrieve(concept domain.ConceptQuerySet, opts retrieval.Options) ([]domain.ScoredMatch, error) {
	return m.retrieveFn(concept, opts)
}

type mockAggregator struct {
	aggregateFn func(matches []domain.ScoredMatch, denominators map[string]domain.CallCounts, opts AggregateOptions) ([]domain.ExposureRecord, error)
}

func (m *mockAggregator) Aggregate(matches []domain.ScoredMatch, denominators map[string]domain.CallCounts, opts AggregateOptions) ([]domain.ExposureRecord, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(matches, denominators, opts)
	}
	return nil, nil
}

type mockDenominators struct {
	counts map[string]domain.CallCounts
}

func (m *mockDenominators) CallCounts() map[string]domain.CallCounts { return m.counts }

func simpleConceptSource() *mockConceptSource {
	return &mockConceptSource{
		loadFn: func(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error) {
			return domain.ConceptQuerySet{
				ConceptID: conceptID,
				Patterns: []domain.QueryPattern{
					{ID: conceptID + "/000", ConceptID: conceptID, Text: "about " + conceptID},
				},
			}, nil, nil
		},
	}
}

func storedThreshold(v float64) *mockThresholdSource {
	return &mockThresholdSource{getFn: func(_ context.Context, conceptID string) (domain.Threshold, error) {
		return domain.Threshold{ConceptID: conceptID, Value: v, Version: "v1"}, nil
	}}
}

func newTestRunner(concepts ConceptSource, thresholds ThresholdSource, retriever Retriever, agg Aggregator) *Runner {
	return NewRunner(concepts, thresholds, &mockBatchEmbedder{}, retriever, agg,
		&mockDenominators{counts: map[string]domain.CallCounts{"call-1": {Paragraphs: 10}}},
		zap.NewNop())
}

func TestRun_EmbedsAndNormalizesPatterns(t *testing.T) {
	var gotConcept domain.ConceptQuerySet
	retriever := &mockRetriever{retrieveFn: func(concept domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		gotConcept = concept
		return nil, nil
	}}
	r := newTestRunner(simpleConceptSource(), storedThreshold(0.5), retriever, &mockAggregator{})

	_, err := r.Run(context.Background(), []string{"climate"}, Options{KPerPattern: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(gotConcept.Patterns) != 1 {
		t.Fatalf("expected 1 embedded pattern, got %d", len(gotConcept.Patterns))
	}
	emb := gotConcept.Patterns[0].Embedding
	// The mock embedder returns (3,4); retrieval must see the unit vector.
	if math.Abs(domain.Norm(emb)-1.0) > 1e-6 {
		t.Errorf("pattern embedding not unit-norm: %v", emb)
	}
	if math.Abs(float64(emb[0])-0.6) > 1e-6 || math.Abs(float64(emb[1])-0.8) > 1e-6 {
		t.Errorf("expected normalized (0.6, 0.8), got %v", emb)
	}
}

func TestRun_FileThresholdWinsOverStore(t *testing.T) {
	concepts := &mockConceptSource{
		loadFn: func(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error) {
			return domain.ConceptQuerySet{
					ConceptID: conceptID,
					Patterns:  []domain.QueryPattern{{ID: conceptID + "/000", Text: "x"}},
				},
				&domain.Threshold{ConceptID: conceptID, Value: 0.42}, nil
		},
	}
	storeCalled := false
	thresholds := &mockThresholdSource{getFn: func(_ context.Context, conceptID string) (domain.Threshold, error) {
		storeCalled = true
		return domain.Threshold{ConceptID: conceptID, Value: 0.99}, nil
	}}
	var gotTau *domain.Threshold
	retriever := &mockRetriever{retrieveFn: func(_ domain.ConceptQuerySet, opts retrieval.Options) ([]domain.ScoredMatch, error) {
		gotTau = opts.Threshold
		return nil, nil
	}}
	r := newTestRunner(concepts, thresholds, retriever, &mockAggregator{})

	if _, err := r.Run(context.Background(), []string{"climate"}, Options{KPerPattern: 5}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotTau == nil || gotTau.Value != 0.42 {
		t.Errorf("expected the file threshold 0.42, got %+v", gotTau)
	}
	if storeCalled {
		t.Error("store must not be consulted when the concept file carries a threshold")
	}
}

func TestRun_MissingThresholdPropagates(t *testing.T) {
	retriever := &mockRetriever{retrieveFn: func(_ domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		t.Fatal("retrieval must not run without a threshold")
		return nil, nil
	}}
	r := newTestRunner(simpleConceptSource(), &mockThresholdSource{}, retriever, &mockAggregator{})

	_, err := r.Run(context.Background(), []string{"climate"}, Options{KPerPattern: 5})
	if !errors.Is(err, domain.ErrMissingThreshold) {
		t.Fatalf("expected ErrMissingThreshold, got %v", err)
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	conceptIDs := []string{"a", "b", "c", "d", "e"}
	retriever := &mockRetriever{retrieveFn: func(concept domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		return []domain.ScoredMatch{
			{ParagraphID: "p-" + concept.ConceptID, ConceptID: concept.ConceptID, CallID: "call-1", Similarity: 0.7},
		}, nil
	}}
	agg := &mockAggregator{aggregateFn: func(matches []domain.ScoredMatch, _ map[string]domain.CallCounts, _ AggregateOptions) ([]domain.ExposureRecord, error) {
		records := make([]domain.ExposureRecord, 0, len(matches))
		for _, m := range matches {
			records = append(records, domain.ExposureRecord{CallID: m.CallID, ConceptID: m.ConceptID, Exposure: 1})
		}
		return records, nil
	}}

	seq := newTestRunner(simpleConceptSource(), storedThreshold(0.5), retriever, agg)
	sequential, err := seq.Run(context.Background(), conceptIDs, Options{KPerPattern: 5})
	if err != nil {
		t.Fatalf("sequential Run: %v", err)
	}

	par := newTestRunner(simpleConceptSource(), storedThreshold(0.5), retriever, agg)
	parallel, err := par.Run(context.Background(), conceptIDs, Options{KPerPattern: 5, Concurrency: 4})
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}

	if !reflect.DeepEqual(sequential, parallel) {
		t.Errorf("parallel run diverged from sequential:\nseq: %+v\npar: %+v", sequential, parallel)
	}
	if len(parallel.Matches) != len(conceptIDs) {
		t.Errorf("expected %d matches, got %d", len(conceptIDs), len(parallel.Matches))
	}
}

func TestRun_WiresRealAggregator(t *testing.T) {
	retriever := &mockRetriever{retrieveFn: func(concept domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		return []domain.ScoredMatch{
			{ParagraphID: "p-1", ConceptID: concept.ConceptID, CallID: "call-1", Similarity: 0.8},
		}, nil
	}}
	r := NewRunner(simpleConceptSource(), storedThreshold(0.5), &mockBatchEmbedder{},
		retriever, indicator.NewAggregator(zap.NewNop()),
		&mockDenominators{counts: map[string]domain.CallCounts{
			"call-1": {Paragraphs: 4},
			"call-2": {Paragraphs: 6},
		}},
		zap.NewNop())

	res, err := r.Run(context.Background(), []string{"climate"}, Options{KPerPattern: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One record per call in the denominator map, matched or not.
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 exposure records, got %d", len(res.Records))
	}
	byCall := map[string]domain.ExposureRecord{}
	for _, rec := range res.Records {
		byCall[rec.CallID] = rec
	}
	if got := byCall["call-1"]; got.Exposure != 1 || got.Intensity != 0.25 {
		t.Errorf("call-1: expected exposure 1 intensity 0.25, got %+v", got)
	}
	if got := byCall["call-2"]; got.Exposure != 0 || got.AvgSimilarity != nil {
		t.Errorf("call-2: expected zero-valued record, got %+v", got)
	}
}

func TestRun_RecordsRetrievalMetrics(t *testing.T) {
	retriever := &mockRetriever{retrieveFn: func(concept domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		return []domain.ScoredMatch{
			{ParagraphID: "p-1", ConceptID: concept.ConceptID, CallID: "call-1", Similarity: 0.8},
			{ParagraphID: "p-2", ConceptID: concept.ConceptID, CallID: "call-1", Similarity: 0.7},
		}, nil
	}}
	r := newTestRunner(simpleConceptSource(), storedThreshold(0.5), retriever, &mockAggregator{})

	// Concept id unique to this test so the counters start at zero.
	if _, err := r.Run(context.Background(), []string{"retrieval_metrics_ok"}, Options{KPerPattern: 5}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.RetrievalRunsTotal.WithLabelValues("retrieval_metrics_ok", "ok")); got != 1 {
		t.Errorf("expected 1 ok run recorded, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.RetrievalMatchesTotal.WithLabelValues("retrieval_metrics_ok")); got != 2 {
		t.Errorf("expected 2 matches recorded, got %v", got)
	}

	broken := &mockConceptSource{loadFn: func(string) (domain.ConceptQuerySet, *domain.Threshold, error) {
		return domain.ConceptQuerySet{}, nil, errors.New("bad yaml")
	}}
	rb := newTestRunner(broken, storedThreshold(0.5), retriever, &mockAggregator{})
	if _, err := rb.Run(context.Background(), []string{"retrieval_metrics_bad"}, Options{KPerPattern: 5}); err == nil {
		t.Fatal("expected run error")
	}
	if got := testutil.ToFloat64(metrics.RetrievalRunsTotal.WithLabelValues("retrieval_metrics_bad", "error")); got != 1 {
		t.Errorf("expected 1 error run recorded, got %v", got)
	}
}

func TestRun_EmptyConceptListUsesSource(t *testing.T) {
	concepts := simpleConceptSource()
	concepts.listFn = func() ([]string, error) { return []string{"climate", "supply_chain"}, nil }
	var retrieved []string
	retriever := &mockRetriever{retrieveFn: func(concept domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		retrieved = append(retrieved, concept.ConceptID)
		return nil, nil
	}}
	r := newTestRunner(concepts, storedThreshold(0.5), retriever, &mockAggregator{})

	res, err := r.Run(context.Background(), nil, Options{KPerPattern: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(retrieved) != 2 {
		t.Errorf("expected both listed concepts retrieved, got %v", retrieved)
	}
	if len(res.MatchesByConcept) != 2 {
		t.Errorf("expected per-concept counts for both concepts, got %v", res.MatchesByConcept)
	}
}

func TestRun_ConceptErrorNamesConcept(t *testing.T) {
	concepts := &mockConceptSource{
		loadFn: func(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error) {
			if conceptID == "broken" {
				return domain.ConceptQuerySet{}, nil, errors.New("bad yaml")
			}
			return domain.ConceptQuerySet{ConceptID: conceptID}, &domain.Threshold{ConceptID: conceptID, Value: 0.5}, nil
		},
	}
	retriever := &mockRetriever{retrieveFn: func(_ domain.ConceptQuerySet, _ retrieval.Options) ([]domain.ScoredMatch, error) {
		return nil, nil
	}}
	r := newTestRunner(concepts, storedThreshold(0.5), retriever, &mockAggregator{})

	_, err := r.Run(context.Background(), []string{"ok", "broken"}, Options{KPerPattern: 5})
	if err == nil || !strings.Contains(err.Error(), "concept broken") {
		t.Fatalf("expected error naming the failing concept, got %v", err)
	}
}
