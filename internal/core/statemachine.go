// Package core contains the workflow integrity logic: the state machine,
// state-history validation, the rate-limit advisor, the checklist/evidence
// gate, and the orchestration of task mutations against the queue store.
package core

import (
	"fmt"
	"time"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// TransitionError is returned when a requested transition is not the
// immediate successor of the current state. It is a hard error, never
// downgraded to a warning.
type TransitionError struct {
	From models.WorkflowState
	To   models.WorkflowState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Invalid state transition: %s -> %s", e.From, e.To)
}

// NextState returns the state immediately following s in the canonical
// order. ok is false for READY_TO_COMMIT (exit happens via completion, not
// transition) and for unknown states.
func NextState(s models.WorkflowState) (next models.WorkflowState, ok bool) {
	order := models.WorkflowStates()
	for i, state := range order {
		if state == s && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// IsValidTransition reports whether to is the immediate successor of from.
// Same-state, backward, and skip-ahead transitions are all invalid.
func IsValidTransition(from, to models.WorkflowState) bool {
	next, ok := NextState(from)
	return ok && next == to
}

// Transition advances the task to the given state, appending the state
// being left (not the destination) to the history and stamping the entry
// time of the new state.
func Transition(task *models.Task, to models.WorkflowState, now time.Time) error {
	from := task.Workflow.CurrentState
	if !IsValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	stamp := now.UTC().Format(time.RFC3339)
	task.Workflow.StateHistory = append(task.Workflow.StateHistory, models.StateHistoryEntry{
		State:     from,
		EnteredAt: stamp,
	})
	task.Workflow.CurrentState = to
	task.Workflow.StateEnteredAt = stamp
	return nil
}
