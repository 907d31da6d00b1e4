package threshold

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/semdex/internal/db"
	"github.com/kailas-cloud/semdex/internal/domain"
)

// mockKV implements the consumer interface for tests.
type mockKV struct {
	data map[string][]byte
}

func newMockKV() *mockKV { return &mockKV{data: make(map[string][]byte)} }

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func TestStore_GetMissing(t *testing.T) {
	s := New(newMockKV())

	_, err := s.Get(context.Background(), "transition_risk")
	if !errors.Is(err, domain.ErrMissingThreshold) {
		t.Fatalf("expected ErrMissingThreshold, got %v", err)
	}

	var mt *domain.MissingThresholdError
	if !errors.As(err, &mt) || mt.ConceptID != "transition_risk" {
		t.Fatalf("expected concept attribution, got %v", err)
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := New(newMockKV())
	ctx := context.Background()

	tau := domain.Threshold{
		ConceptID:    "transition_risk",
		Value:        0.47,
		Version:      "v2",
		CalibratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Put(ctx, tau); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "transition_risk")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != 0.47 || got.Version != "v2" {
		t.Errorf("unexpected threshold: %+v", got)
	}

	archived, err := s.GetVersion(ctx, "transition_risk", "v2")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if archived.Value != 0.47 {
		t.Errorf("unexpected archived threshold: %+v", archived)
	}
}

func TestStore_VersionsAreRetained(t *testing.T) {
	s := New(newMockKV())
	ctx := context.Background()

	for i, v := range []float64{0.40, 0.45} {
		tau := domain.Threshold{ConceptID: "c", Value: v, Version: []string{"v1", "v2"}[i]}
		if err := s.Put(ctx, tau); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	current, err := s.Get(ctx, "c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Value != 0.45 {
		t.Errorf("expected current 0.45, got %f", current.Value)
	}

	old, err := s.GetVersion(ctx, "c", "v1")
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if old.Value != 0.40 {
		t.Errorf("expected archived 0.40, got %f", old.Value)
	}
}

func TestStore_PutRequiresConcept(t *testing.T) {
	s := New(newMockKV())
	if err := s.Put(context.Background(), domain.Threshold{Value: 0.5}); err == nil {
		t.Fatal("expected error for missing concept id")
	}
}

func TestMemory_Store(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "c"); !errors.Is(err, domain.ErrMissingThreshold) {
		t.Fatalf("expected ErrMissingThreshold, got %v", err)
	}

	if err := m.Put(ctx, domain.Threshold{ConceptID: "c", Value: 0.5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	tau, err := m.Get(ctx, "c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tau.Value != 0.5 {
		t.Errorf("unexpected threshold: %+v", tau)
	}
}

func TestMemory_VersionsAreRetained(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetVersion(ctx, "c", "v1"); !errors.Is(err, domain.ErrMissingThreshold) {
		t.Fatalf("expected ErrMissingThreshold, got %v", err)
	}

	for i, v := range []float64{0.40, 0.45} {
		tau := domain.Threshold{ConceptID: "c", Value: v, Version: []string{"v1", "v2"}[i]}
		if err := m.Put(ctx, tau); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	current, err := m.Get(ctx, "c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Value != 0.45 {
		t.Errorf("expected current 0.45, got %f", current.Value)
	}

	old, err := m.GetVersion(ctx, "c", "v1")
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if old.Value != 0.40 {
		t.Errorf("expected archived 0.40, got %f", old.Value)
	}
}
