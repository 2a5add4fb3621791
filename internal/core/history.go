package core

import (
	"fmt"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// CorruptionError is returned when the recorded state history cannot be the
// result of a legal forward walk. It is the security-relevant control: the
// validator re-reads the queue document on every mutating call, so forging
// the cache file alone cannot bypass the mandatory states. Corruption is
// never auto-repaired; the error names the violation and the explicit
// remediation command.
type CorruptionError struct {
	TaskID string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf(
		"STATE HISTORY CORRUPTION in task %s: %s. The recorded history cannot result from a legal forward walk; run 'awc task repair %s' to rebuild it from the canonical state order",
		e.TaskID, e.Reason, e.TaskID,
	)
}

// HistoryValidation is the tagged result of history validation. Checking a
// boolean on the result (instead of scanning strings) keeps callers from
// forgetting the corrupted branch.
type HistoryValidation struct {
	Valid  bool
	Reason string
}

func validHistory() HistoryValidation {
	return HistoryValidation{Valid: true}
}

func corrupted(format string, args ...any) HistoryValidation {
	return HistoryValidation{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

// ValidateStateHistory inspects the recorded transition history for forged
// or corrupted entries. It runs before transition validation on every state
// update, against the task data as loaded from the queue at that moment.
func ValidateStateHistory(task *models.Task) HistoryValidation {
	current := task.Workflow.CurrentState
	history := task.Workflow.StateHistory

	if !models.IsValidWorkflowState(current) {
		return corrupted("current state %q is not a known workflow state", current)
	}

	// The current state must only ever be the live position, never also a
	// completed entry.
	for _, entry := range history {
		if entry.State == current {
			return corrupted("Current state found in history: %s", current)
		}
	}

	if len(history) == 0 {
		if current == models.StateUnderstanding {
			return validHistory()
		}
		return corrupted("state history is empty but current state is %s (expected %s)",
			current, models.StateUnderstanding)
	}

	if history[0].State != models.StateUnderstanding {
		return corrupted("state history starts at %s instead of %s",
			history[0].State, models.StateUnderstanding)
	}

	// Every consecutive pair must be a single forward step, and the last
	// entry must step forward into the current state.
	for i := 0; i+1 < len(history); i++ {
		from, to := history[i].State, history[i+1].State
		if !IsValidTransition(from, to) {
			return corrupted("history records %s -> %s, which is not a single forward step (%s)",
				from, to, describeIllegalStep(from, to))
		}
	}
	last := history[len(history)-1].State
	if !IsValidTransition(last, current) {
		return corrupted("last history entry %s does not step forward into current state %s (%s)",
			last, current, describeIllegalStep(last, current))
	}

	return validHistory()
}

// ValidateHistoryForUpdate converts a failed validation into the hard
// CorruptionError surfaced to callers.
func ValidateHistoryForUpdate(task *models.Task) error {
	if v := ValidateStateHistory(task); !v.Valid {
		return &CorruptionError{TaskID: task.ID, Reason: v.Reason}
	}
	return nil
}

// describeIllegalStep classifies a bad history step for the error message.
func describeIllegalStep(from, to models.WorkflowState) string {
	order := models.WorkflowStates()
	idx := func(s models.WorkflowState) int {
		for i, st := range order {
			if st == s {
				return i
			}
		}
		return -1
	}

	fi, ti := idx(from), idx(to)
	switch {
	case fi < 0 || ti < 0:
		return "unknown state"
	case fi == ti:
		return "repeated state"
	case ti < fi:
		return "reversal"
	case ti-fi > 1:
		return fmt.Sprintf("skips %s", order[fi+1])
	default:
		return "illegal step"
	}
}

// RebuildHistory replaces the task's state history with the canonical
// forward walk ending at its current state, stamping entries with the
// task's creation time. This is the repair path behind 'awc task repair';
// it is only ever invoked explicitly and is logged as a repair event.
func RebuildHistory(task *models.Task) error {
	current := task.Workflow.CurrentState
	if !models.IsValidWorkflowState(current) {
		return fmt.Errorf("rebuilding history: current state %q is not a known workflow state", current)
	}

	var rebuilt []models.StateHistoryEntry
	for _, state := range models.WorkflowStates() {
		if state == current {
			break
		}
		rebuilt = append(rebuilt, models.StateHistoryEntry{
			State:     state,
			EnteredAt: task.CreatedAt,
		})
	}
	if rebuilt == nil {
		rebuilt = []models.StateHistoryEntry{}
	}
	task.Workflow.StateHistory = rebuilt
	return nil
}
