package core

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// Any prefix of the canonical walk produced by Transition validates.
func TestHistory_TransitionWalksAlwaysValidProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := &models.Task{
			ID: "TASK-00001",
			Workflow: models.Workflow{
				CurrentState:   models.StateUnderstanding,
				StateEnteredAt: "2026-08-01T09:00:00Z",
				StateHistory:   []models.StateHistoryEntry{},
			},
		}
		now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

		steps := rapid.IntRange(0, len(models.WorkflowStates())-1).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			next, ok := NextState(task.Workflow.CurrentState)
			if !ok {
				rt.Fatalf("ran out of states at step %d", i)
			}
			now = now.Add(time.Duration(rapid.IntRange(1, 600).Draw(rt, "gap")) * time.Second)
			if err := Transition(task, next, now); err != nil {
				rt.Fatalf("legal transition failed: %v", err)
			}
			if v := ValidateStateHistory(task); !v.Valid {
				rt.Fatalf("history invalid after %d legal steps: %s", i+1, v.Reason)
			}
		}
	})
}

// Injecting the current state into the history is always detected.
func TestHistory_CurrentStateInjectionDetectedProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		order := models.WorkflowStates()
		steps := rapid.IntRange(1, len(order)-1).Draw(rt, "steps")

		task := &models.Task{ID: "TASK-00001", Workflow: models.Workflow{CurrentState: order[0]}}
		now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		for i := 0; i < steps; i++ {
			now = now.Add(time.Minute)
			if err := Transition(task, order[i+1], now); err != nil {
				rt.Fatalf("legal transition failed: %v", err)
			}
		}

		pos := rapid.IntRange(0, len(task.Workflow.StateHistory)).Draw(rt, "pos")
		forged := models.StateHistoryEntry{State: task.Workflow.CurrentState, EnteredAt: "2026-08-01T09:00:00Z"}
		history := task.Workflow.StateHistory
		history = append(history[:pos:pos], append([]models.StateHistoryEntry{forged}, history[pos:]...)...)
		task.Workflow.StateHistory = history

		if v := ValidateStateHistory(task); v.Valid {
			rt.Fatalf("injected current state at %d went undetected", pos)
		}
	})
}

// Deleting an intermediate entry from a multi-step walk is always detected:
// either a step gets skipped or the history no longer starts at
// UNDERSTANDING.
func TestHistory_DroppedEntryDetectedProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		order := models.WorkflowStates()
		steps := rapid.IntRange(2, len(order)-1).Draw(rt, "steps")

		task := &models.Task{ID: "TASK-00001", Workflow: models.Workflow{CurrentState: order[0]}}
		now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		for i := 0; i < steps; i++ {
			now = now.Add(time.Minute)
			if err := Transition(task, order[i+1], now); err != nil {
				rt.Fatalf("legal transition failed: %v", err)
			}
		}

		history := task.Workflow.StateHistory
		drop := rapid.IntRange(0, len(history)-1).Draw(rt, "drop")
		task.Workflow.StateHistory = append(history[:drop:drop], history[drop+1:]...)

		if v := ValidateStateHistory(task); v.Valid {
			rt.Fatalf("dropping entry %d of %d went undetected", drop, steps)
		}
	})
}

// RebuildHistory always produces a history that validates, whatever garbage
// was there before.
func TestHistory_RebuildAlwaysValidProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		order := models.WorkflowStates()
		current := order[rapid.IntRange(0, len(order)-1).Draw(rt, "current")]

		n := rapid.IntRange(0, 8).Draw(rt, "n")
		garbage := make([]models.StateHistoryEntry, n)
		for i := range garbage {
			garbage[i] = models.StateHistoryEntry{
				State:     order[rapid.IntRange(0, len(order)-1).Draw(rt, "entry")],
				EnteredAt: "2026-08-01T09:00:00Z",
			}
		}

		task := &models.Task{
			ID:        "TASK-00001",
			CreatedAt: "2026-08-01T08:00:00Z",
			Workflow:  models.Workflow{CurrentState: current, StateHistory: garbage},
		}

		if err := RebuildHistory(task); err != nil {
			rt.Fatalf("rebuild failed: %v", err)
		}
		if v := ValidateStateHistory(task); !v.Valid {
			rt.Fatalf("rebuilt history invalid: %s", v.Reason)
		}
	})
}
