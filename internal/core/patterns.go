package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shadel/ai-workflow-core/pkg/models"
	"gopkg.in/yaml.v3"
)

// PatternProvider supplies the externally-defined rule collections that
// contribute checklist items to workflow states.
type PatternProvider interface {
	PatternsForState(state models.WorkflowState) (*models.PatternSet, error)
}

// patternsFile is the top-level structure of patterns.yaml.
type patternsFile struct {
	Version  string `yaml:"version"`
	Patterns struct {
		Mandatory   []models.Pattern `yaml:"mandatory"`
		Recommended []models.Pattern `yaml:"recommended"`
	} `yaml:"patterns"`
}

type yamlPatternProvider struct {
	basePath string
}

// NewPatternProvider creates a PatternProvider reading patterns.yaml from
// the given base directory. A missing file means no patterns are defined.
func NewPatternProvider(basePath string) PatternProvider {
	return &yamlPatternProvider{basePath: basePath}
}

func (p *yamlPatternProvider) filePath() string {
	return filepath.Join(p.basePath, "patterns.yaml")
}

// PatternsForState loads the pattern file and returns the patterns whose
// required states include the given state. A pattern with no required
// states applies everywhere.
func (p *yamlPatternProvider) PatternsForState(state models.WorkflowState) (*models.PatternSet, error) {
	data, err := os.ReadFile(p.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &models.PatternSet{}, nil
		}
		return nil, fmt.Errorf("loading patterns: %w", err)
	}

	var pf patternsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("loading patterns: parsing %s: %w", p.filePath(), err)
	}

	set := &models.PatternSet{}
	for _, pat := range pf.Patterns.Mandatory {
		if appliesTo(pat, state) {
			set.Mandatory = append(set.Mandatory, pat)
		}
	}
	for _, pat := range pf.Patterns.Recommended {
		if appliesTo(pat, state) {
			set.Recommended = append(set.Recommended, pat)
		}
	}
	return set, nil
}

func appliesTo(p models.Pattern, state models.WorkflowState) bool {
	if len(p.RequiredStates) == 0 {
		return true
	}
	return p.AppliesTo(state)
}
