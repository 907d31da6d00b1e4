// Package concepts loads concept definitions from YAML files. One file per
// concept, named <concept_id>.yaml, holding the query patterns that define
// the topic plus an optional pre-calibrated threshold.
package concepts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Definition is the on-disk shape of a concept file.
type Definition struct {
	Concept          string   `yaml:"concept"`
	Description      string   `yaml:"description"`
	Threshold        *float64 `yaml:"threshold"`
	ThresholdVersion string   `yaml:"threshold_version"`
	Patterns         []string `yaml:"patterns"`
}

// Loader reads concept definitions from a directory.
type Loader struct {
	dir string
}

// NewLoader creates a loader over a concepts directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// List returns the concept ids available in the directory, sorted.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list concepts %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(name, ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one concept definition. Pattern embeddings are filled later by
// the embedding stage; here each pattern gets a stable id from its position.
// The optional threshold, when present, is returned alongside.
func (l *Loader) Load(conceptID string) (domain.ConceptQuerySet, *domain.Threshold, error) {
	path := l.pathFor(conceptID)
	if path == "" {
		return domain.ConceptQuerySet{}, nil,
			fmt.Errorf("%w: %s (searched %s)", domain.ErrConceptNotFound, conceptID, l.dir)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.ConceptQuerySet{}, nil, fmt.Errorf("read concept %s: %w", conceptID, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return domain.ConceptQuerySet{}, nil, fmt.Errorf("parse concept %s: %w", conceptID, err)
	}
	if def.Concept == "" {
		def.Concept = conceptID
	}
	if def.Concept != conceptID {
		return domain.ConceptQuerySet{}, nil,
			fmt.Errorf("concept file %s declares concept %q", path, def.Concept)
	}

	set := domain.ConceptQuerySet{
		ConceptID:   def.Concept,
		Description: def.Description,
		Patterns:    make([]domain.QueryPattern, 0, len(def.Patterns)),
	}
	for i, text := range def.Patterns {
		set.Patterns = append(set.Patterns, domain.QueryPattern{
			ID:        fmt.Sprintf("%s/%03d", def.Concept, i),
			ConceptID: def.Concept,
			Text:      text,
		})
	}

	var tau *domain.Threshold
	if def.Threshold != nil {
		tau = &domain.Threshold{
			ConceptID: def.Concept,
			Value:     *def.Threshold,
			Version:   def.ThresholdVersion,
		}
	}

	return set, tau, nil
}

func (l *Loader) pathFor(conceptID string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, conceptID+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
