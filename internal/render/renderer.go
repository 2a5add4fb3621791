// Package render writes the human/AI-readable context documents
// (STATUS.txt, NEXT_STEPS.md) derived from the active task. It is a
// consumer of the core's outputs; the core never reads these files back.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

// FileRenderer implements core.ContextRenderer by writing STATUS.txt and
// NEXT_STEPS.md into the base directory.
type FileRenderer struct {
	basePath string
}

// NewFileRenderer creates a renderer writing into the given base directory.
func NewFileRenderer(basePath string) *FileRenderer {
	return &FileRenderer{basePath: basePath}
}

func (r *FileRenderer) statusPath() string {
	return filepath.Join(r.basePath, "STATUS.txt")
}

func (r *FileRenderer) nextStepsPath() string {
	return filepath.Join(r.basePath, "NEXT_STEPS.md")
}

var statusTemplate = template.Must(template.New("status").Parse(`TASK {{.Task.ID}}
Goal: {{.Task.Goal}}
Status: {{.Task.Status}}
Workflow state: {{.Task.Workflow.CurrentState}} (entered {{.Task.Workflow.StateEnteredAt}})

Progress:
{{- range .States}}
  [{{.Mark}}] {{.Name}}
{{- end}}

Requirements:
{{- range .Task.Requirements}}
  - {{.}}
{{- end}}
{{- if not .Task.Requirements}}
  (none recorded)
{{- end}}
{{- if .Warning}}

WARNING:
{{.Warning}}
{{- end}}
`))

var nextStepsTemplate = template.Must(template.New("nextsteps").Parse(`# Next Steps: {{.Task.ID}}

Current workflow state: **{{.Task.Workflow.CurrentState}}** ({{.Percent}}% of its checklist done)

## Outstanding checklist items
{{- range .Unmet}}
- [ ] ` + "`{{.ID}}`" + ` {{.Title}}{{if .EvidenceRequired}} (evidence required){{end}}
{{- end}}
{{- if not .Unmet}}
- All required items satisfied.
{{- end}}

## Then
{{- if .Next}}
Advance with ` + "`awc task sync --state {{.Next}}`" + `.
{{- else}}
Finish with ` + "`awc task complete`" + `.
{{- end}}
`))

type stateLine struct {
	Name models.WorkflowState
	Mark string
}

// RenderActiveTask writes both context documents for the task. warning, if
// present, is included in STATUS.txt verbatim.
func (r *FileRenderer) RenderActiveTask(task *models.Task, warning *core.RateLimitWarning) error {
	if task == nil {
		return fmt.Errorf("rendering context: task is nil")
	}
	if err := os.MkdirAll(r.basePath, 0o750); err != nil {
		return fmt.Errorf("rendering context: creating directory: %w", err)
	}

	var states []stateLine
	passed := true
	for _, s := range models.WorkflowStates() {
		mark := " "
		if s == task.Workflow.CurrentState {
			mark = ">"
			passed = false
		} else if passed {
			mark = "x"
		}
		states = append(states, stateLine{Name: s, Mark: mark})
	}

	warningText := ""
	if warning != nil {
		warningText = warning.Message
	}

	var buf bytes.Buffer
	err := statusTemplate.Execute(&buf, struct {
		Task    *models.Task
		States  []stateLine
		Warning string
	}{task, states, warningText})
	if err != nil {
		return fmt.Errorf("rendering STATUS.txt: %w", err)
	}
	if err := os.WriteFile(r.statusPath(), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("rendering STATUS.txt: %w", err)
	}

	cl := task.Checklist(task.Workflow.CurrentState)
	var unmet []models.ChecklistItem
	percent := 100
	if cl != nil {
		unmet = core.IncompleteRequiredItems(cl)
		percent = core.CompletionPercentage(cl)
	}
	next, hasNext := core.NextState(task.Workflow.CurrentState)
	nextName := models.WorkflowState("")
	if hasNext {
		nextName = next
	}

	buf.Reset()
	err = nextStepsTemplate.Execute(&buf, struct {
		Task    *models.Task
		Unmet   []models.ChecklistItem
		Percent int
		Next    models.WorkflowState
	}{task, unmet, percent, nextName})
	if err != nil {
		return fmt.Errorf("rendering NEXT_STEPS.md: %w", err)
	}
	if err := os.WriteFile(r.nextStepsPath(), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("rendering NEXT_STEPS.md: %w", err)
	}
	return nil
}

// Clear removes the context documents for a completed task. Missing files
// are not an error.
func (r *FileRenderer) Clear(string) error {
	for _, p := range []string{r.statusPath(), r.nextStepsPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clearing context: %w", err)
		}
	}
	return nil
}
