package models

// EvidenceType classifies the structured proof attached to a checklist item.
type EvidenceType string

const (
	EvidenceFileCreated  EvidenceType = "file_created"
	EvidenceFileModified EvidenceType = "file_modified"
	EvidenceTestPassed   EvidenceType = "test_passed"
	EvidenceCommandRun   EvidenceType = "command_run"
	EvidenceManual       EvidenceType = "manual"
)

// Evidence is structured proof attached to a completed checklist item.
// Items flagged EvidenceRequired do not count toward clearing a gate
// without one of these attached.
type Evidence struct {
	Type        EvidenceType `json:"type"`
	Description string       `json:"description"`
	Files       []string     `json:"files,omitempty"`
	TestResults string       `json:"testResults,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

// ChecklistItem is a single required or optional action within a workflow
// state's checklist.
type ChecklistItem struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Required         bool      `json:"required"`
	Completed        bool      `json:"completed"`
	CompletedAt      string    `json:"completedAt,omitempty"`
	Evidence         *Evidence `json:"evidence,omitempty"`
	EvidenceRequired bool      `json:"evidenceRequired,omitempty"`
}

// Satisfied reports whether the item counts toward clearing a gate.
// Completion and gate satisfaction are distinct: an item marked complete
// without required evidence remains unsatisfied.
func (i ChecklistItem) Satisfied() bool {
	if !i.Completed {
		return false
	}
	if i.EvidenceRequired && i.Evidence == nil {
		return false
	}
	return true
}

// Checklist is the set of items gating exit from one workflow state.
// One checklist instance exists per (task, workflow state) pair.
type Checklist struct {
	State       WorkflowState   `json:"state"`
	Items       []ChecklistItem `json:"items"`
	CompletedAt string          `json:"completedAt,omitempty"`
}

// Item returns a pointer to the item with the given id, or nil.
func (c *Checklist) Item(id string) *ChecklistItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}
