package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shadel/ai-workflow-core/internal/storage"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

// recordingSink captures events emitted by the manager.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Record(eventType, _ string, _ string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

func (s *recordingSink) has(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type workflowFixture struct {
	dir   string
	queue storage.QueueManager
	cache storage.CacheManager
	sink  *recordingSink
	mgr   *workflowManager
	clock time.Time
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	dir := t.TempDir()
	fx := &workflowFixture{
		dir:   dir,
		queue: storage.NewQueueManager(dir, "TASK", 5),
		cache: storage.NewCacheManager(dir, ""),
		sink:  &recordingSink{},
		clock: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	fx.mgr = NewWorkflowManager(WorkflowConfig{
		Queue:  fx.queue,
		Cache:  fx.cache,
		Events: fx.sink,
	}).(*workflowManager)
	fx.mgr.now = func() time.Time { return fx.clock }
	return fx
}

// tick moves the fixture clock forward far enough to stay clear of the
// rate-limit advisor.
func (fx *workflowFixture) tick() {
	fx.clock = fx.clock.Add(10 * time.Minute)
}

// completeState checks off the required items of the given state.
func (fx *workflowFixture) completeState(t *testing.T, state models.WorkflowState) {
	t.Helper()
	required := map[models.WorkflowState][]struct {
		id       string
		evidence *models.Evidence
	}{
		models.StateUnderstanding: {
			{"goal-understood", nil},
			{"requirements-captured", nil},
		},
		models.StateDesigning: {
			{"approach-outlined", nil},
			{"edge-cases-considered", nil},
		},
		models.StateImplementing: {
			{"code-implemented", &models.Evidence{Type: models.EvidenceFileModified, Description: "edited files"}},
			{"error-paths-handled", nil},
		},
		models.StateTesting: {
			{"tests-written", &models.Evidence{Type: models.EvidenceTestPassed, Description: "suite added"}},
			{"tests-passing", &models.Evidence{Type: models.EvidenceTestPassed, Description: "all green"}},
		},
		models.StateReviewing: {
			{"self-review-done", nil},
		},
		models.StateReadyToCommit: {},
	}
	for _, item := range required[state] {
		if _, err := fx.mgr.CheckItem(state, item.id, item.evidence); err != nil {
			t.Fatalf("checking %s in %s: %v", item.id, state, err)
		}
	}
}

// advanceTo walks the active task from UNDERSTANDING up to the target state.
func (fx *workflowFixture) advanceTo(t *testing.T, target models.WorkflowState) {
	t.Helper()
	for {
		task, err := fx.mgr.GetActiveTask()
		if err != nil {
			t.Fatalf("getting active task: %v", err)
		}
		if task.Workflow.CurrentState == target {
			return
		}
		fx.completeState(t, task.Workflow.CurrentState)
		next, ok := NextState(task.Workflow.CurrentState)
		if !ok {
			t.Fatalf("no successor for %s while aiming at %s", task.Workflow.CurrentState, target)
		}
		fx.tick()
		if _, err := fx.mgr.UpdateTaskState(next); err != nil {
			t.Fatalf("advancing to %s: %v", next, err)
		}
	}
}

func TestWorkflow_CreateTaskActivatesAndSyncsCache(t *testing.T) {
	fx := newWorkflowFixture(t)

	task, err := fx.mgr.CreateTask("build the thing", []string{"REQ-1"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != models.StatusActive {
		t.Fatalf("expected active, got %s", task.Status)
	}

	cache, err := fx.cache.Read()
	if err != nil {
		t.Fatalf("expected cache written: %v", err)
	}
	if cache.TaskID != task.ID || cache.OriginalGoal != "build the thing" {
		t.Fatalf("cache does not reflect the task: %+v", cache)
	}
	if !fx.sink.has("task.created") {
		t.Fatal("expected task.created event")
	}
}

func TestWorkflow_UpdateTaskState_NoActiveTask(t *testing.T) {
	fx := newWorkflowFixture(t)

	_, err := fx.mgr.UpdateTaskState(models.StateDesigning)
	if !errors.Is(err, ErrNoActiveTask) {
		t.Fatalf("expected ErrNoActiveTask, got %v", err)
	}
}

func TestWorkflow_UpdateTaskState_RejectsSkip(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}
	fx.tick()

	_, err := fx.mgr.UpdateTaskState(models.StateImplementing)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	// The rejected transition must not have touched the document.
	task, err := fx.mgr.GetActiveTask()
	if err != nil {
		t.Fatal(err)
	}
	if task.Workflow.CurrentState != models.StateUnderstanding {
		t.Fatalf("rejected transition mutated state to %s", task.Workflow.CurrentState)
	}
}

func TestWorkflow_UpdateTaskState_ChecklistGates(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}
	fx.tick()

	_, err := fx.mgr.UpdateTaskState(models.StateDesigning)
	var incomplete *ChecklistIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ChecklistIncompleteError, got %v", err)
	}

	fx.completeState(t, models.StateUnderstanding)
	fx.tick()
	result, err := fx.mgr.UpdateTaskState(models.StateDesigning)
	if err != nil {
		t.Fatalf("unexpected error after gate satisfied: %v", err)
	}
	if result.Task.Workflow.CurrentState != models.StateDesigning {
		t.Fatalf("expected DESIGNING, got %s", result.Task.Workflow.CurrentState)
	}
	if !fx.sink.has("task.state_changed") {
		t.Fatal("expected task.state_changed event")
	}
}

func TestWorkflow_UpdateTaskState_WarningSurvivesFailedTransition(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}
	// Ten seconds after creation: well inside the strong-warning window.
	fx.clock = fx.clock.Add(10 * time.Second)

	result, err := fx.mgr.UpdateTaskState(models.StateTesting)
	if err == nil {
		t.Fatal("expected the skip transition to fail")
	}
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if result == nil || result.Warning == nil {
		t.Fatal("the advisory warning must be emitted even when the transition fails")
	}
	if result.Warning.Level != WarnStrong {
		t.Fatalf("expected strong warning, got %s", result.Warning.Level)
	}
	if !fx.sink.has("ratelimit.warning") {
		t.Fatal("expected ratelimit.warning event")
	}
}

func TestWorkflow_UpdateTaskState_RapidButValidProceeds(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}
	fx.completeState(t, models.StateUnderstanding)
	fx.clock = fx.clock.Add(30 * time.Second)

	result, err := fx.mgr.UpdateTaskState(models.StateDesigning)
	if err != nil {
		t.Fatalf("rapid but valid transition must proceed: %v", err)
	}
	if result.Warning == nil || result.Warning.Level != WarnStrong {
		t.Fatalf("expected strong warning alongside success, got %+v", result.Warning)
	}
	if result.Task.Workflow.CurrentState != models.StateDesigning {
		t.Fatalf("expected DESIGNING, got %s", result.Task.Workflow.CurrentState)
	}
}

func TestWorkflow_UpdateTaskState_DetectsForgedHistory(t *testing.T) {
	fx := newWorkflowFixture(t)
	task, err := fx.mgr.CreateTask("goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	// Forge the queue document directly: claim REVIEWING with a history
	// that skips straight there.
	if err := fx.queue.Load(); err != nil {
		t.Fatal(err)
	}
	err = fx.queue.UpdateTask(task.ID, func(tk *models.Task) error {
		tk.Workflow.CurrentState = models.StateReviewing
		tk.Workflow.StateHistory = []models.StateHistoryEntry{
			{State: models.StateUnderstanding, EnteredAt: tk.CreatedAt},
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.queue.Save(); err != nil {
		t.Fatal(err)
	}

	fx.tick()
	_, err = fx.mgr.UpdateTaskState(models.StateReadyToCommit)
	var cerr *CorruptionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if !fx.sink.has("history.corruption") {
		t.Fatal("expected history.corruption event")
	}

	// Explicit repair unblocks the task.
	if _, err := fx.mgr.RepairTask(task.ID); err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !fx.sink.has("task.repaired") {
		t.Fatal("expected task.repaired event")
	}
	fresh, err := fx.mgr.GetActiveTask()
	if err != nil {
		t.Fatal(err)
	}
	if v := ValidateStateHistory(fresh); !v.Valid {
		t.Fatalf("history still invalid after repair: %s", v.Reason)
	}
}

func TestWorkflow_CompleteTask_RequiresReadyToCommit(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}

	_, err := fx.mgr.CompleteTask()
	if err == nil {
		t.Fatal("expected completion to fail before READY_TO_COMMIT")
	}
	if !strings.Contains(err.Error(), "must be READY_TO_COMMIT") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWorkflow_CompleteTask_FullLifecycle(t *testing.T) {
	fx := newWorkflowFixture(t)
	first, err := fx.mgr.CreateTask("first goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.mgr.CreateTask("second goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	fx.advanceTo(t, models.StateReadyToCommit)

	result, err := fx.mgr.CompleteTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyCompleted {
		t.Fatal("first completion must not be flagged as repeat")
	}
	if result.Task.ID != first.ID || result.Task.Status != models.StatusDone {
		t.Fatalf("unexpected completion result: %+v", result.Task)
	}
	if result.Task.ReviewChecklist == nil {
		t.Fatal("expected REVIEWING checklist snapshot on completion")
	}
	if result.Promoted == nil || result.Promoted.ID != second.ID {
		t.Fatalf("expected %s promoted, got %+v", second.ID, result.Promoted)
	}

	// Cache now reflects the promoted task.
	cache, err := fx.cache.Read()
	if err != nil {
		t.Fatal(err)
	}
	if cache.TaskID != second.ID {
		t.Fatalf("cache should project the promoted task, got %s", cache.TaskID)
	}
	if !fx.sink.has("task.completed") {
		t.Fatal("expected task.completed event")
	}
}

func TestWorkflow_CompleteTask_IsIdempotent(t *testing.T) {
	fx := newWorkflowFixture(t)
	task, err := fx.mgr.CreateTask("only goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	fx.advanceTo(t, models.StateReadyToCommit)

	if _, err := fx.mgr.CompleteTask(); err != nil {
		t.Fatalf("first completion: %v", err)
	}

	// With no queued successor the cache is removed.
	if _, err := fx.cache.Read(); !errors.Is(err, storage.ErrNoCache) {
		t.Fatalf("expected cache removed after last completion, got %v", err)
	}

	repeat, err := fx.mgr.CompleteTask()
	if err != nil {
		t.Fatalf("repeat completion must succeed: %v", err)
	}
	if !repeat.AlreadyCompleted {
		t.Fatal("repeat completion must report AlreadyCompleted")
	}
	if repeat.Task.ID != task.ID {
		t.Fatalf("repeat completion names wrong task: %s", repeat.Task.ID)
	}
}

func TestWorkflow_UpdateTask_AppendsRequirements(t *testing.T) {
	fx := newWorkflowFixture(t)
	task, err := fx.mgr.CreateTask("goal", []string{"REQ-1"}, "")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := fx.mgr.UpdateTask(task.ID, "", []string{"REQ-2", "REQ-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Requirements) != 2 {
		t.Fatalf("expected deduplicated append, got %v", updated.Requirements)
	}
}

func TestWorkflow_ActiveCache_RegeneratesFromQueue(t *testing.T) {
	fx := newWorkflowFixture(t)
	task, err := fx.mgr.CreateTask("goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the cache file; the queue remains authoritative.
	if err := os.WriteFile(fx.cache.Path(), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	cache, err := fx.mgr.ActiveCache()
	if err != nil {
		t.Fatalf("expected recovery from queue: %v", err)
	}
	if cache.TaskID != task.ID {
		t.Fatalf("recovered cache for wrong task: %s", cache.TaskID)
	}
	if !fx.sink.has("cache.rollback") {
		t.Fatal("expected cache.rollback event")
	}
}

func TestWorkflow_ActiveCache_FallsBackToBackup(t *testing.T) {
	fx := newWorkflowFixture(t)
	task, err := fx.mgr.CreateTask("goal", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	// Snapshot a backup while the cache is healthy.
	if err := fx.cache.Backup(); err != nil {
		t.Fatal(err)
	}
	// Corrupt the cache AND the queue: the queue can no longer supply an
	// active task, so the backup is the last resort.
	if err := os.WriteFile(fx.cache.Path(), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fx.dir, "task_queue.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	cache, err := fx.mgr.ActiveCache()
	if err != nil {
		t.Fatalf("expected recovery from backup: %v", err)
	}
	if cache.TaskID != task.ID {
		t.Fatalf("backup restored wrong task: %s", cache.TaskID)
	}
}

func TestWorkflow_GetChecklist_InitializesOnDemand(t *testing.T) {
	fx := newWorkflowFixture(t)
	if _, err := fx.mgr.CreateTask("goal", nil, ""); err != nil {
		t.Fatal(err)
	}

	cl, err := fx.mgr.GetChecklist("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.State != models.StateUnderstanding {
		t.Fatalf("empty state must mean the current state, got %s", cl.State)
	}
	if len(cl.Items) == 0 {
		t.Fatal("expected template items")
	}
}
