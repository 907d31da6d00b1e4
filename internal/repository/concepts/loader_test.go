package concepts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/semdex/internal/domain"
)

const transitionYAML = `concept: transition_risk
description: Exposure to the low-carbon transition
threshold: 0.42
threshold_version: v3
patterns:
  - transition to a low carbon economy
  - carbon pricing and emission trading
  - stranded fossil fuel assets
`

func writeConcept(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write concept file: %v", err)
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "transition_risk.yaml", transitionYAML)

	set, tau, err := NewLoader(dir).Load("transition_risk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.ConceptID != "transition_risk" {
		t.Errorf("unexpected concept id: %s", set.ConceptID)
	}
	if len(set.Patterns) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(set.Patterns))
	}
	if set.Patterns[0].ID != "transition_risk/000" {
		t.Errorf("unexpected pattern id: %s", set.Patterns[0].ID)
	}
	if set.Patterns[2].Text != "stranded fossil fuel assets" {
		t.Errorf("unexpected pattern text: %s", set.Patterns[2].Text)
	}

	if tau == nil {
		t.Fatal("expected threshold from file")
	}
	if tau.Value != 0.42 || tau.Version != "v3" || tau.ConceptID != "transition_risk" {
		t.Errorf("unexpected threshold: %+v", tau)
	}
}

func TestLoader_LoadWithoutThreshold(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "physical_risk.yaml", "patterns:\n  - extreme weather damage\n")

	set, tau, err := NewLoader(dir).Load("physical_risk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tau != nil {
		t.Errorf("expected nil threshold, got %+v", tau)
	}
	if set.ConceptID != "physical_risk" {
		t.Errorf("unexpected concept id: %s", set.ConceptID)
	}
}

func TestLoader_LoadMissing(t *testing.T) {
	_, _, err := NewLoader(t.TempDir()).Load("nope")
	if !errors.Is(err, domain.ErrConceptNotFound) {
		t.Fatalf("expected ErrConceptNotFound, got %v", err)
	}
}

func TestLoader_RejectsMismatchedName(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "a.yaml", "concept: b\npatterns: [x]\n")

	if _, _, err := NewLoader(dir).Load("a"); err == nil {
		t.Fatal("expected error for mismatched concept name")
	}
}

func TestLoader_List(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "b_topic.yaml", "patterns: [x]\n")
	writeConcept(t, dir, "a_topic.yml", "patterns: [y]\n")
	writeConcept(t, dir, "notes.txt", "ignored")

	names, err := NewLoader(dir).List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "a_topic" || names[1] != "b_topic" {
		t.Fatalf("unexpected names: %v", names)
	}
}
