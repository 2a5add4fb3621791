package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

func renderableTask() *models.Task {
	return &models.Task{
		ID:     "TASK-00001",
		Goal:   "ship the feature",
		Status: models.StatusActive,
		Workflow: models.Workflow{
			CurrentState:   models.StateImplementing,
			StateEnteredAt: "2026-08-01T10:00:00Z",
			StateHistory: []models.StateHistoryEntry{
				{State: models.StateUnderstanding, EnteredAt: "2026-08-01T08:00:00Z"},
				{State: models.StateDesigning, EnteredAt: "2026-08-01T09:00:00Z"},
			},
		},
		Requirements: []string{"REQ-1"},
		Checklists: map[string]*models.Checklist{
			string(models.StateImplementing): {
				State: models.StateImplementing,
				Items: []models.ChecklistItem{
					{ID: "code-implemented", Title: "Code implemented", Required: true, EvidenceRequired: true},
					{ID: "error-paths-handled", Title: "Error paths handled", Required: true, Completed: true},
				},
			},
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestRenderActiveTask_WritesStatus(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir)

	if err := r.RenderActiveTask(renderableTask(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := readFile(t, filepath.Join(dir, "STATUS.txt"))
	for _, want := range []string{
		"TASK TASK-00001",
		"Goal: ship the feature",
		"Workflow state: IMPLEMENTING",
		"[x] UNDERSTANDING",
		"[x] DESIGNING",
		"[>] IMPLEMENTING",
		"[ ] TESTING",
		"- REQ-1",
	} {
		if !strings.Contains(status, want) {
			t.Fatalf("STATUS.txt missing %q:\n%s", want, status)
		}
	}
	if strings.Contains(status, "WARNING") {
		t.Fatalf("no warning section expected:\n%s", status)
	}
}

func TestRenderActiveTask_IncludesWarning(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir)

	warning := &core.RateLimitWarning{Level: core.WarnMild, Message: "Quick transition: only 3 minute(s) in DESIGNING"}
	if err := r.RenderActiveTask(renderableTask(), warning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := readFile(t, filepath.Join(dir, "STATUS.txt"))
	if !strings.Contains(status, "WARNING:") || !strings.Contains(status, warning.Message) {
		t.Fatalf("warning not rendered:\n%s", status)
	}
}

func TestRenderActiveTask_NextStepsListsUnmetItems(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir)

	if err := r.RenderActiveTask(renderableTask(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next := readFile(t, filepath.Join(dir, "NEXT_STEPS.md"))
	for _, want := range []string{
		"# Next Steps: TASK-00001",
		"**IMPLEMENTING**",
		"`code-implemented`",
		"(evidence required)",
		"awc task sync --state TESTING",
	} {
		if !strings.Contains(next, want) {
			t.Fatalf("NEXT_STEPS.md missing %q:\n%s", want, next)
		}
	}
	if strings.Contains(next, "error-paths-handled") {
		t.Fatalf("satisfied item must not be listed:\n%s", next)
	}
}

func TestRenderActiveTask_TerminalStateSuggestsComplete(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir)

	task := renderableTask()
	task.Workflow.CurrentState = models.StateReadyToCommit
	task.Checklists = nil

	if err := r.RenderActiveTask(task, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next := readFile(t, filepath.Join(dir, "NEXT_STEPS.md"))
	if !strings.Contains(next, "awc task complete") {
		t.Fatalf("terminal state must suggest completion:\n%s", next)
	}
	if !strings.Contains(next, "All required items satisfied.") {
		t.Fatalf("empty checklist must read as satisfied:\n%s", next)
	}
}

func TestRenderActiveTask_NilTask(t *testing.T) {
	if err := NewFileRenderer(t.TempDir()).RenderActiveTask(nil, nil); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestClear_RemovesBothDocuments(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(dir)

	if err := r.RenderActiveTask(renderableTask(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Clear("TASK-00001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"STATUS.txt", "NEXT_STEPS.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed", name)
		}
	}
}

func TestClear_MissingFilesAreFine(t *testing.T) {
	if err := NewFileRenderer(t.TempDir()).Clear("TASK-00001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
