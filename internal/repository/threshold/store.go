// Package threshold persists calibrated per-concept thresholds. Thresholds
// are computed offline, versioned, and read-only during a retrieval run.
package threshold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/semdex/internal/db"
	"github.com/kailas-cloud/semdex/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "threshold:"

// store is the consumer interface for threshold persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store keeps the current threshold per concept in a key-value store,
// with every version retained under a versioned key for reproducibility.
type Store struct {
	store store
}

// New creates a threshold store.
func New(s store) *Store {
	return &Store{store: s}
}

// Get returns the current threshold for a concept. A concept without a
// calibrated threshold yields MissingThresholdError: retrieval must fail
// fast rather than default to some cutoff.
func (s *Store) Get(ctx context.Context, conceptID string) (domain.Threshold, error) {
	data, err := s.store.Get(ctx, currentKey(conceptID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Threshold{}, &domain.MissingThresholdError{ConceptID: conceptID}
		}
		return domain.Threshold{}, fmt.Errorf("threshold GET %s: %w", conceptID, err)
	}

	var tau domain.Threshold
	if err := json.Unmarshal(data, &tau); err != nil {
		return domain.Threshold{}, fmt.Errorf("threshold GET %s parse: %w", conceptID, err)
	}
	return tau, nil
}

// Put stores a threshold as the concept's current value and archives it
// under its version when one is set.
func (s *Store) Put(ctx context.Context, tau domain.Threshold) error {
	if tau.ConceptID == "" {
		return fmt.Errorf("threshold PUT: concept id is required")
	}

	data, err := json.Marshal(tau)
	if err != nil {
		return fmt.Errorf("threshold PUT %s marshal: %w", tau.ConceptID, err)
	}

	if err := s.store.Set(ctx, currentKey(tau.ConceptID), data); err != nil {
		return fmt.Errorf("threshold PUT %s: %w", tau.ConceptID, err)
	}

	if tau.Version != "" {
		if err := s.store.Set(ctx, versionKey(tau.ConceptID, tau.Version), data); err != nil {
			return fmt.Errorf("threshold PUT %s@%s: %w", tau.ConceptID, tau.Version, err)
		}
	}
	return nil
}

// GetVersion returns an archived threshold version.
func (s *Store) GetVersion(ctx context.Context, conceptID, version string) (domain.Threshold, error) {
	data, err := s.store.Get(ctx, versionKey(conceptID, version))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Threshold{}, &domain.MissingThresholdError{ConceptID: conceptID}
		}
		return domain.Threshold{}, fmt.Errorf("threshold GET %s@%s: %w", conceptID, version, err)
	}

	var tau domain.Threshold
	if err := json.Unmarshal(data, &tau); err != nil {
		return domain.Threshold{}, fmt.Errorf("threshold GET %s@%s parse: %w", conceptID, version, err)
	}
	return tau, nil
}

func currentKey(conceptID string) string {
	return keyPrefix + conceptID + ":current"
}

func versionKey(conceptID, version string) string {
	return keyPrefix + conceptID + ":" + version
}
