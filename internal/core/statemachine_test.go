package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

func TestIsValidTransition_ForwardStepsOnly(t *testing.T) {
	order := models.WorkflowStates()
	for i, from := range order {
		for j, to := range order {
			valid := IsValidTransition(from, to)
			want := j == i+1
			if valid != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, valid, want)
			}
		}
	}
}

func TestIsValidTransition_UnknownStates(t *testing.T) {
	if IsValidTransition("LIMBO", models.StateDesigning) {
		t.Error("transition from unknown state must be invalid")
	}
	if IsValidTransition(models.StateUnderstanding, "LIMBO") {
		t.Error("transition to unknown state must be invalid")
	}
}

func TestNextState(t *testing.T) {
	next, ok := NextState(models.StateUnderstanding)
	if !ok || next != models.StateDesigning {
		t.Fatalf("expected DESIGNING after UNDERSTANDING, got %s (ok=%v)", next, ok)
	}

	if _, ok := NextState(models.StateReadyToCommit); ok {
		t.Fatal("READY_TO_COMMIT must have no successor state")
	}
}

func TestTransition_AppendsDepartedState(t *testing.T) {
	task := &models.Task{
		ID: "TASK-00001",
		Workflow: models.Workflow{
			CurrentState:   models.StateUnderstanding,
			StateEnteredAt: "2026-08-01T09:00:00Z",
		},
	}
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	if err := Transition(task, models.StateDesigning, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Workflow.CurrentState != models.StateDesigning {
		t.Fatalf("expected current state DESIGNING, got %s", task.Workflow.CurrentState)
	}
	if len(task.Workflow.StateHistory) != 1 {
		t.Fatalf("expected one history entry, got %d", len(task.Workflow.StateHistory))
	}
	entry := task.Workflow.StateHistory[0]
	if entry.State != models.StateUnderstanding {
		t.Fatalf("history must record the departed state, got %s", entry.State)
	}
	if task.Workflow.StateEnteredAt != "2026-08-01T10:00:00Z" {
		t.Fatalf("expected entry stamp updated, got %s", task.Workflow.StateEnteredAt)
	}
}

func TestTransition_RejectsSkip(t *testing.T) {
	task := &models.Task{
		ID:       "TASK-00001",
		Workflow: models.Workflow{CurrentState: models.StateUnderstanding},
	}

	err := Transition(task, models.StateImplementing, time.Now())
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.Error() != "Invalid state transition: UNDERSTANDING -> IMPLEMENTING" {
		t.Fatalf("unexpected message: %s", terr.Error())
	}
	if task.Workflow.CurrentState != models.StateUnderstanding {
		t.Fatal("failed transition must not mutate the task")
	}
	if len(task.Workflow.StateHistory) != 0 {
		t.Fatal("failed transition must not touch history")
	}
}

func TestTransition_RejectsBackward(t *testing.T) {
	task := &models.Task{
		ID:       "TASK-00001",
		Workflow: models.Workflow{CurrentState: models.StateTesting},
	}

	if err := Transition(task, models.StateImplementing, time.Now()); err == nil {
		t.Fatal("expected error for backward transition")
	}
}

func TestTransition_FullWalk(t *testing.T) {
	task := &models.Task{
		ID:       "TASK-00001",
		Workflow: models.Workflow{CurrentState: models.StateUnderstanding},
	}
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	order := models.WorkflowStates()
	for _, to := range order[1:] {
		now = now.Add(10 * time.Minute)
		if err := Transition(task, to, now); err != nil {
			t.Fatalf("walking to %s: %v", to, err)
		}
	}

	if task.Workflow.CurrentState != models.StateReadyToCommit {
		t.Fatalf("expected READY_TO_COMMIT at the end, got %s", task.Workflow.CurrentState)
	}
	if len(task.Workflow.StateHistory) != len(order)-1 {
		t.Fatalf("expected %d history entries, got %d", len(order)-1, len(task.Workflow.StateHistory))
	}
	if v := ValidateStateHistory(task); !v.Valid {
		t.Fatalf("canonical walk produced invalid history: %s", v.Reason)
	}
}
