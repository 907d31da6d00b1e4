package retrieval

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
)

// mockIndex implements the Index consumer interface for tests.
type mockIndex struct {
	queryFn func(vector []float32, k int) ([]index.Hit, error)
}

func (m *mockIndex) Query(vector []float32, k int) ([]index.Hit, error) {
	if m.queryFn != nil {
		return m.queryFn(vector, k)
	}
	return nil, nil
}

// mockSearcher implements Searcher for concept retriever tests.
type mockSearcher struct {
	searchFn func(vector []float32, k int) ([]RegionHit, error)
}

func (m *mockSearcher) Search(vector []float32, k int) ([]RegionHit, error) {
	if m.searchFn != nil {
		return m.searchFn(vector, k)
	}
	return nil, nil
}

// mockResolver implements ParagraphResolver over a fixed record set.
type mockResolver struct {
	records map[string]domain.ParagraphRecord
}

func (m *mockResolver) Paragraph(id string) (domain.ParagraphRecord, bool) {
	rec, ok := m.records[id]
	return rec, ok
}

func nopLogger() *zap.Logger { return zap.NewNop() }

func tau(v float64) *domain.Threshold {
	return &domain.Threshold{ConceptID: "test", Value: v, Version: "v1"}
}

func staticHits(hits []index.Hit) *mockIndex {
	return &mockIndex{queryFn: func(_ []float32, k int) ([]index.Hit, error) {
		if len(hits) > k {
			return hits[:k], nil
		}
		return hits, nil
	}}
}
