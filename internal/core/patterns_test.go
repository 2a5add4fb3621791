package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

const samplePatternsYAML = `version: "1.0"
patterns:
  mandatory:
    - id: threat-model
      name: Threat model reviewed
      description: Review the threat model before shipping
      required_states: [REVIEWING]
      validation:
        type: file_exists
        target: docs/threat-model.md
  recommended:
    - id: changelog
      name: Changelog entry
      description: Add a changelog entry
`

func TestPatternsForState_FiltersByState(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "patterns.yaml"), []byte(samplePatternsYAML), 0o600); err != nil {
		t.Fatalf("writing patterns: %v", err)
	}
	provider := NewPatternProvider(dir)

	set, err := provider.PatternsForState(models.StateReviewing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Mandatory) != 1 || set.Mandatory[0].ID != "threat-model" {
		t.Fatalf("expected threat-model mandatory for REVIEWING, got %+v", set.Mandatory)
	}
	if len(set.Recommended) != 1 {
		t.Fatalf("state-less pattern must apply everywhere, got %+v", set.Recommended)
	}

	set, err = provider.PatternsForState(models.StateDesigning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Mandatory) != 0 {
		t.Fatalf("threat-model must not apply to DESIGNING, got %+v", set.Mandatory)
	}
	if len(set.Recommended) != 1 {
		t.Fatalf("state-less pattern must still apply, got %+v", set.Recommended)
	}
}

func TestPatternsForState_MissingFileIsEmpty(t *testing.T) {
	provider := NewPatternProvider(t.TempDir())

	set, err := provider.PatternsForState(models.StateTesting)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Mandatory) != 0 || len(set.Recommended) != 0 {
		t.Fatalf("expected empty set for missing file, got %+v", set)
	}
}

func TestPatternsForState_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "patterns.yaml"), []byte(":\n  - not yaml"), 0o600); err != nil {
		t.Fatalf("writing patterns: %v", err)
	}

	if _, err := NewPatternProvider(dir).PatternsForState(models.StateTesting); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
