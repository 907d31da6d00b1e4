package threshold

import (
	"context"
	"sync"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Memory is an in-process threshold store for deployments without a
// database and for tests. Like Store, it archives every version so
// calibration history stays inspectable within a process lifetime.
type Memory struct {
	mu       sync.RWMutex
	current  map[string]domain.Threshold
	archived map[string]domain.Threshold
}

// NewMemory creates an empty in-memory threshold store.
func NewMemory() *Memory {
	return &Memory{
		current:  make(map[string]domain.Threshold),
		archived: make(map[string]domain.Threshold),
	}
}

// Get returns the current threshold for a concept.
func (m *Memory) Get(_ context.Context, conceptID string) (domain.Threshold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tau, ok := m.current[conceptID]
	if !ok {
		return domain.Threshold{}, &domain.MissingThresholdError{ConceptID: conceptID}
	}
	return tau, nil
}

// Put stores a threshold as the concept's current value and archives it
// under its version when one is set.
func (m *Memory) Put(_ context.Context, tau domain.Threshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[tau.ConceptID] = tau
	if tau.Version != "" {
		m.archived[tau.ConceptID+":"+tau.Version] = tau
	}
	return nil
}

// GetVersion returns an archived threshold version.
func (m *Memory) GetVersion(_ context.Context, conceptID, version string) (domain.Threshold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tau, ok := m.archived[conceptID+":"+version]
	if !ok {
		return domain.Threshold{}, &domain.MissingThresholdError{ConceptID: conceptID}
	}
	return tau, nil
}
