package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// ChecklistIncompleteError blocks a transition whose current-state
// checklist has unmet required items. Unlike the rate limiter this is a
// hard gate.
type ChecklistIncompleteError struct {
	State models.WorkflowState
	Items []models.ChecklistItem
}

func (e *ChecklistIncompleteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "checklist incomplete for %s: %d required item(s) unmet:", e.State, len(e.Items))
	for _, item := range e.Items {
		fmt.Fprintf(&b, "\n  - %s: %s", item.ID, item.Title)
		if item.Description != "" {
			fmt.Fprintf(&b, " (%s)", item.Description)
		}
		if item.EvidenceRequired && item.Completed && item.Evidence == nil {
			b.WriteString(" (marked complete but missing required evidence)")
		}
	}
	b.WriteString("\ncomplete them with 'awc checklist check <item-id>' (use --evidence-type for items requiring evidence)")
	return b.String()
}

// ConfigError reports conflicting checklist definitions, e.g. a
// pattern-derived item colliding with a static template item. Conflicts are
// surfaced, never silently merged.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "checklist configuration error: " + e.Reason
}

// staticTemplates are the canonical per-state checklist items. Static
// required items are always required regardless of patterns.
var staticTemplates = map[models.WorkflowState][]models.ChecklistItem{
	models.StateUnderstanding: {
		{ID: "goal-understood", Title: "Goal understood", Description: "Restate the task goal in your own words", Required: true},
		{ID: "requirements-captured", Title: "Requirements captured", Description: "All external requirement identifiers recorded on the task", Required: true},
		{ID: "open-questions-raised", Title: "Open questions raised", Description: "Ambiguities noted before design begins"},
	},
	models.StateDesigning: {
		{ID: "approach-outlined", Title: "Approach outlined", Description: "Chosen approach written down with alternatives considered", Required: true},
		{ID: "edge-cases-considered", Title: "Edge cases considered", Description: "Failure modes and boundary conditions enumerated", Required: true},
	},
	models.StateImplementing: {
		{ID: "code-implemented", Title: "Code implemented", Description: "Implementation matches the designed approach", Required: true, EvidenceRequired: true},
		{ID: "error-paths-handled", Title: "Error paths handled", Description: "Failures propagate with context instead of being swallowed", Required: true},
		{ID: "docs-updated", Title: "Docs updated", Description: "User-facing documentation reflects the change"},
	},
	models.StateTesting: {
		{ID: "tests-written", Title: "Tests written", Description: "New behavior covered by tests", Required: true, EvidenceRequired: true},
		{ID: "tests-passing", Title: "Tests passing", Description: "Full test suite passes", Required: true, EvidenceRequired: true},
	},
	models.StateReviewing: {
		{ID: "self-review-done", Title: "Self review done", Description: "Diff reviewed line by line before hand-off", Required: true},
		{ID: "feedback-addressed", Title: "Feedback addressed", Description: "Review comments resolved or answered"},
	},
	models.StateReadyToCommit: {
		{ID: "commit-message-drafted", Title: "Commit message drafted", Description: "Commit message describes the change for a reader with no context"},
	},
}

// ChecklistManager builds and mutates per-state checklists and enforces the
// evidence gate.
type ChecklistManager interface {
	InitializeStateChecklist(task *models.Task, state models.WorkflowState) (*models.Checklist, error)
	MarkItemComplete(task *models.Task, state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.ChecklistItem, error)
	AssertGateSatisfied(task *models.Task, state models.WorkflowState) error
}

type checklistManager struct {
	patterns PatternProvider
	now      func() time.Time
}

// NewChecklistManager creates a ChecklistManager drawing dynamic items from
// the given PatternProvider (nil for static templates only).
func NewChecklistManager(patterns PatternProvider) ChecklistManager {
	return &checklistManager{patterns: patterns, now: time.Now}
}

// InitializeStateChecklist creates the checklist for (task, state) from the
// static template plus pattern-derived items. Idempotent: an existing
// checklist is returned untouched.
func (m *checklistManager) InitializeStateChecklist(task *models.Task, state models.WorkflowState) (*models.Checklist, error) {
	if !models.IsValidWorkflowState(state) {
		return nil, fmt.Errorf("initializing checklist: unknown workflow state %q", state)
	}
	if existing := task.Checklist(state); existing != nil {
		return existing, nil
	}

	cl := &models.Checklist{State: state}
	seen := make(map[string]string) // item id -> defining source

	for _, tmpl := range staticTemplates[state] {
		item := tmpl
		cl.Items = append(cl.Items, item)
		seen[item.ID] = fmt.Sprintf("static %s template", state)
	}

	if m.patterns != nil {
		set, err := m.patterns.PatternsForState(state)
		if err != nil {
			return nil, fmt.Errorf("initializing checklist for %s: %w", state, err)
		}
		for _, pat := range set.Mandatory {
			if err := appendPatternItem(cl, seen, pat, true); err != nil {
				return nil, err
			}
		}
		for _, pat := range set.Recommended {
			if err := appendPatternItem(cl, seen, pat, false); err != nil {
				return nil, err
			}
		}
	}

	task.SetChecklist(state, cl)
	return cl, nil
}

// appendPatternItem synthesizes a checklist item from a pattern. A
// duplicate id against the static template or another pattern is a
// configuration error.
func appendPatternItem(cl *models.Checklist, seen map[string]string, pat models.Pattern, mandatory bool) error {
	id := "pattern:" + pat.ID
	if source, dup := seen[id]; dup {
		return &ConfigError{Reason: fmt.Sprintf(
			"item id %q from pattern %q conflicts with %s", id, pat.Name, source)}
	}
	if _, dup := seen[pat.ID]; dup {
		return &ConfigError{Reason: fmt.Sprintf(
			"pattern %q reuses checklist item id %q already defined by %s", pat.Name, pat.ID, seen[pat.ID])}
	}

	item := models.ChecklistItem{
		ID:          id,
		Title:       pat.Name,
		Description: pat.Description,
		Required:    mandatory,
	}
	if pat.Validation != nil {
		switch pat.Validation.Type {
		case models.ValidationFileExists, models.ValidationCommandRun, models.ValidationCodeCheck:
			item.EvidenceRequired = true
		}
	}

	cl.Items = append(cl.Items, item)
	seen[id] = fmt.Sprintf("pattern %q", pat.Name)
	return nil
}

// MarkItemComplete marks the item completed and attaches evidence when
// supplied. Completion and gate satisfaction are distinct: an
// evidence-required item marked complete without evidence stays
// unsatisfied for gating purposes.
func (m *checklistManager) MarkItemComplete(task *models.Task, state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.ChecklistItem, error) {
	cl, err := m.InitializeStateChecklist(task, state)
	if err != nil {
		return nil, fmt.Errorf("completing checklist item: %w", err)
	}

	item := cl.Item(itemID)
	if item == nil {
		return nil, fmt.Errorf("completing checklist item: no item %q in the %s checklist", itemID, state)
	}

	now := m.now().UTC().Format(time.RFC3339)
	item.Completed = true
	item.CompletedAt = now
	if evidence != nil {
		if evidence.Timestamp == "" {
			evidence.Timestamp = now
		}
		item.Evidence = evidence
	}

	if IsChecklistComplete(cl) && cl.CompletedAt == "" {
		cl.CompletedAt = now
	}
	return item, nil
}

// AssertGateSatisfied blocks unless every required item of the state's
// checklist is satisfied. A never-initialized checklist is built first so
// static required items always gate.
func (m *checklistManager) AssertGateSatisfied(task *models.Task, state models.WorkflowState) error {
	cl, err := m.InitializeStateChecklist(task, state)
	if err != nil {
		return err
	}
	if unmet := IncompleteRequiredItems(cl); len(unmet) > 0 {
		return &ChecklistIncompleteError{State: state, Items: unmet}
	}
	return nil
}

// IsChecklistComplete reports whether every required item is completed and
// every evidence-required item carries evidence.
func IsChecklistComplete(cl *models.Checklist) bool {
	return len(IncompleteRequiredItems(cl)) == 0
}

// IncompleteRequiredItems returns the required items that do not yet count
// toward clearing the gate.
func IncompleteRequiredItems(cl *models.Checklist) []models.ChecklistItem {
	var unmet []models.ChecklistItem
	for _, item := range cl.Items {
		if item.Required && !item.Satisfied() {
			unmet = append(unmet, item)
		}
	}
	return unmet
}

// CompletionPercentage is the rounded share of completed items. Purely
// informational; gating uses IncompleteRequiredItems.
func CompletionPercentage(cl *models.Checklist) int {
	if cl == nil || len(cl.Items) == 0 {
		return 100
	}
	completed := 0
	for _, item := range cl.Items {
		if item.Completed {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(cl.Items)) * 100))
}
