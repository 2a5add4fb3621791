package models

// TaskStatus is the coarse lifecycle tag of a task, orthogonal to its
// workflow state. Exactly one task may be active at a time.
type TaskStatus string

const (
	StatusQueued TaskStatus = "queued"
	StatusActive TaskStatus = "active"
	StatusDone   TaskStatus = "done"
)

// WorkflowState is one of the six ordered phases a task passes through.
// Completion is not a workflow state: a task sits at READY_TO_COMMIT until
// the completion service flips its status to done.
type WorkflowState string

const (
	StateUnderstanding WorkflowState = "UNDERSTANDING"
	StateDesigning     WorkflowState = "DESIGNING"
	StateImplementing  WorkflowState = "IMPLEMENTING"
	StateTesting       WorkflowState = "TESTING"
	StateReviewing     WorkflowState = "REVIEWING"
	StateReadyToCommit WorkflowState = "READY_TO_COMMIT"
)

// WorkflowStates returns the canonical state order, first to last.
func WorkflowStates() []WorkflowState {
	return []WorkflowState{
		StateUnderstanding, StateDesigning, StateImplementing,
		StateTesting, StateReviewing, StateReadyToCommit,
	}
}

// IsValidWorkflowState reports whether s is a known workflow state.
func IsValidWorkflowState(s WorkflowState) bool {
	switch s {
	case StateUnderstanding, StateDesigning, StateImplementing,
		StateTesting, StateReviewing, StateReadyToCommit:
		return true
	default:
		return false
	}
}

// Priority represents the urgency level of a queued task. It only matters
// when the queue ordering policy is set to "priority".
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// StateHistoryEntry records a workflow state the task previously exited.
// The current state is never present in the history; its appearance there
// is a corruption signal.
type StateHistoryEntry struct {
	State     WorkflowState `json:"state"`
	EnteredAt string        `json:"enteredAt"`
}

// Workflow is the per-task workflow sub-object. All state and history
// changes flow through this struct via the queue store; no component
// persists workflow state any other way.
//
// Timestamps are RFC3339 strings rather than time.Time so that a malformed
// value degrades to "no information" instead of failing document decoding.
type Workflow struct {
	CurrentState   WorkflowState       `json:"currentState"`
	StateEnteredAt string              `json:"stateEnteredAt"`
	StateHistory   []StateHistoryEntry `json:"stateHistory"`
}

// Task is a unit of work tracked by the queue store.
type Task struct {
	ID           string                `json:"id"`
	Goal         string                `json:"goal"`
	Status       TaskStatus            `json:"status"`
	Priority     Priority              `json:"priority,omitempty"`
	CreatedAt    string                `json:"createdAt"`
	StartedAt    string                `json:"startedAt,omitempty"`
	CompletedAt  string                `json:"completedAt,omitempty"`
	Workflow     Workflow              `json:"workflow"`
	Requirements []string              `json:"requirements"`
	Checklists   map[string]*Checklist `json:"checklists,omitempty"`
	// ReviewChecklist is a snapshot of the REVIEWING checklist taken at
	// completion time, preserved for audit.
	ReviewChecklist *Checklist `json:"reviewChecklist,omitempty"`
}

// AddRequirements appends requirement identifiers, deduplicated and
// preserving first-seen order. The requirements set is append-only.
func (t *Task) AddRequirements(reqs ...string) {
	seen := make(map[string]struct{}, len(t.Requirements))
	for _, r := range t.Requirements {
		seen[r] = struct{}{}
	}
	for _, r := range reqs {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		t.Requirements = append(t.Requirements, r)
	}
}

// Checklist returns the checklist for the given workflow state, or nil if
// none has been initialized yet.
func (t *Task) Checklist(state WorkflowState) *Checklist {
	if t.Checklists == nil {
		return nil
	}
	return t.Checklists[string(state)]
}

// SetChecklist stores the checklist for the given workflow state.
func (t *Task) SetChecklist(state WorkflowState, cl *Checklist) {
	if t.Checklists == nil {
		t.Checklists = make(map[string]*Checklist)
	}
	t.Checklists[string(state)] = cl
}
