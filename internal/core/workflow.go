package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shadel/ai-workflow-core/internal/storage"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

// ErrNoActiveTask is returned when an operation needs an active task and
// none exists. Deliberately distinct from queue corruption and from
// "active task in the wrong state": callers guide the user differently for
// each (create vs. fix vs. wait).
var ErrNoActiveTask = errors.New("no active task (create one with 'awc task create <goal>')")

// ContextRenderer is the external collaborator producing human/AI-readable
// status documents. The core calls it after every mutation but does not
// depend on its output; rendering failures are non-fatal.
type ContextRenderer interface {
	RenderActiveTask(task *models.Task, warning *RateLimitWarning) error
	Clear(taskID string) error
}

// EventRecorder is the narrow sink the core emits observability events
// into. Recording must never fail a mutation.
type EventRecorder interface {
	Record(eventType, level, msg string, data map[string]any)
}

// TransitionResult carries the outcome of UpdateTaskState. Warning may be
// set even when the transition itself failed: the advisor runs before
// transition validation and its output is emitted regardless.
type TransitionResult struct {
	Task    *models.Task
	Warning *RateLimitWarning
}

// CompletionResult carries the outcome of CompleteTask.
type CompletionResult struct {
	Task *models.Task
	// AlreadyCompleted is true when the task was done before the call;
	// repeated completion calls are safe and report the same success.
	AlreadyCompleted bool
	// Promoted is the next queued task activated by this completion, if any.
	Promoted *models.Task
}

// WorkflowManager orchestrates all task mutations against the queue store,
// in the fixed order: history validation, rate-limit advisory, transition
// validation, checklist gate, mutation, save, cache sync, render.
type WorkflowManager interface {
	CreateTask(goal string, requirements []string, priority models.Priority) (*models.Task, error)
	GetActiveTask() (*models.Task, error)
	GetAllTasks() ([]models.Task, error)
	UpdateTask(taskID, goal string, addRequirements []string) (*models.Task, error)
	UpdateTaskState(to models.WorkflowState) (*TransitionResult, error)
	CompleteTask() (*CompletionResult, error)
	CheckItem(state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.ChecklistItem, error)
	GetChecklist(state models.WorkflowState) (*models.Checklist, error)
	RepairTask(taskID string) (*models.Task, error)
	ActiveCache() (*storage.ActiveTaskCache, error)
}

// WorkflowConfig bundles the injected collaborators of the manager.
// Renderer and Events may be nil.
type WorkflowConfig struct {
	Queue      storage.QueueManager
	Cache      storage.CacheManager
	Checklists ChecklistManager
	RateLimit  RateLimitAdvisor
	Renderer   ContextRenderer
	Events     EventRecorder
	// Comparator orders queued tasks for promotion; nil means FIFO.
	Comparator storage.Comparator
	// PreserveFields are untracked cache fields carried across syncs.
	PreserveFields []string
}

type workflowManager struct {
	queue      storage.QueueManager
	cache      storage.CacheManager
	checklists ChecklistManager
	rateLimit  RateLimitAdvisor
	renderer   ContextRenderer
	events     EventRecorder
	cmp        storage.Comparator
	preserve   []string
	now        func() time.Time
}

// NewWorkflowManager creates a WorkflowManager with all dependencies
// injected.
func NewWorkflowManager(cfg WorkflowConfig) WorkflowManager {
	cmp := cfg.Comparator
	if cmp == nil {
		cmp = storage.FIFOComparator
	}
	checklists := cfg.Checklists
	if checklists == nil {
		checklists = NewChecklistManager(nil)
	}
	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = NewRateLimitAdvisor(true)
	}
	return &workflowManager{
		queue:      cfg.Queue,
		cache:      cfg.Cache,
		checklists: checklists,
		rateLimit:  rateLimit,
		renderer:   cfg.Renderer,
		events:     cfg.Events,
		cmp:        cmp,
		preserve:   cfg.PreserveFields,
		now:        time.Now,
	}
}

func (wm *workflowManager) record(eventType, level, msg string, data map[string]any) {
	if wm.events != nil {
		wm.events.Record(eventType, level, msg, data)
	}
}

func (wm *workflowManager) render(task *models.Task, warning *RateLimitWarning) {
	if wm.renderer != nil {
		_ = wm.renderer.RenderActiveTask(task, warning) // non-fatal
	}
}

// syncCache backs up the current cache file and projects the task over it.
func (wm *workflowManager) syncCache(task *models.Task) error {
	if err := wm.cache.Backup(); err != nil {
		return err
	}
	return wm.cache.SyncFromQueue(task, wm.preserve)
}

// CreateTask assigns an id, enqueues the task (active if the slot is free,
// queued otherwise), and projects it to the cache when it became active.
func (wm *workflowManager) CreateTask(goal string, requirements []string, priority models.Priority) (*models.Task, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	task, err := wm.queue.CreateTask(goal, requirements, priority)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	if task.Status == models.StatusActive {
		if err := wm.syncCache(task); err != nil {
			return nil, fmt.Errorf("creating task %s: %w", task.ID, err)
		}
		wm.render(task, nil)
	}

	wm.record("task.created", "INFO", fmt.Sprintf("task %s created", task.ID), map[string]any{
		"task_id": task.ID,
		"status":  string(task.Status),
	})

	out := *task
	return &out, nil
}

// GetActiveTask loads the queue and returns the active task, or
// ErrNoActiveTask.
func (wm *workflowManager) GetActiveTask() (*models.Task, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("getting active task: %w", err)
	}
	task := wm.queue.GetActiveTask()
	if task == nil {
		return nil, ErrNoActiveTask
	}
	out := *task
	return &out, nil
}

func (wm *workflowManager) GetAllTasks() ([]models.Task, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("getting tasks: %w", err)
	}
	return wm.queue.GetAllTasks(), nil
}

// UpdateTask mutates the task's goal and/or appends requirements.
func (wm *workflowManager) UpdateTask(taskID, goal string, addRequirements []string) (*models.Task, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}

	err := wm.queue.UpdateTask(taskID, func(t *models.Task) error {
		if goal != "" {
			t.Goal = goal
		}
		t.AddRequirements(addRequirements...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("updating task %s: %w", taskID, err)
	}

	task, err := wm.queue.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.StatusActive {
		if err := wm.syncCache(task); err != nil {
			return nil, fmt.Errorf("updating task %s: %w", taskID, err)
		}
		wm.render(task, nil)
	}

	out := *task
	return &out, nil
}

// UpdateTaskState advances the active task to the given workflow state.
//
// Order of checks, fixed by design: the history validator runs first
// (before any transition validation, against the queue as just loaded);
// the rate-limit advisor runs next so its warning is emitted even when the
// transition is then rejected; transition validity and the checklist gate
// are hard errors; only then is the mutation applied and persisted.
func (wm *workflowManager) UpdateTaskState(to models.WorkflowState) (*TransitionResult, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("updating task state: %w", err)
	}

	task := wm.queue.GetActiveTask()
	if task == nil {
		return nil, ErrNoActiveTask
	}

	if err := ValidateHistoryForUpdate(task); err != nil {
		wm.record("history.corruption", "ERROR", err.Error(), map[string]any{"task_id": task.ID})
		return nil, err
	}

	now := wm.now()
	warning := wm.rateLimit.Check(task, now)
	result := &TransitionResult{Warning: warning}
	if warning != nil {
		wm.record("ratelimit.warning", "WARN", warning.Message, map[string]any{
			"task_id":         task.ID,
			"state":           string(task.Workflow.CurrentState),
			"elapsed_seconds": int(warning.Elapsed.Seconds()),
		})
	}

	from := task.Workflow.CurrentState
	if !IsValidTransition(from, to) {
		return result, &TransitionError{From: from, To: to}
	}

	if err := wm.checklists.AssertGateSatisfied(task, from); err != nil {
		return result, fmt.Errorf("updating task %s state: %w", task.ID, err)
	}

	if err := Transition(task, to, now); err != nil {
		return result, err
	}
	if _, err := wm.checklists.InitializeStateChecklist(task, to); err != nil {
		return result, fmt.Errorf("updating task %s state: %w", task.ID, err)
	}

	if err := wm.queue.Save(); err != nil {
		return result, fmt.Errorf("updating task %s state: %w", task.ID, err)
	}
	if err := wm.syncCache(task); err != nil {
		return result, fmt.Errorf("updating task %s state: %w", task.ID, err)
	}
	wm.render(task, warning)

	wm.record("task.state_changed", "INFO",
		fmt.Sprintf("task %s: %s -> %s", task.ID, from, to),
		map[string]any{"task_id": task.ID, "from": string(from), "to": string(to)})

	out := *task
	result.Task = &out
	return result, nil
}

// CompleteTask performs the terminal transition: the active task must sit
// at READY_TO_COMMIT. Completion is idempotent: with no active task, the
// most recently completed task is reported as already completed rather
// than erroring.
func (wm *workflowManager) CompleteTask() (*CompletionResult, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}

	task := wm.queue.GetActiveTask()
	if task == nil {
		if done := wm.queue.LatestCompleted(); done != nil {
			out := *done
			return &CompletionResult{Task: &out, AlreadyCompleted: true}, nil
		}
		return nil, ErrNoActiveTask
	}

	if err := ValidateHistoryForUpdate(task); err != nil {
		wm.record("history.corruption", "ERROR", err.Error(), map[string]any{"task_id": task.ID})
		return nil, err
	}

	if task.Workflow.CurrentState != models.StateReadyToCommit {
		return nil, fmt.Errorf("cannot complete task %s: workflow state is %s, must be %s",
			task.ID, task.Workflow.CurrentState, models.StateReadyToCommit)
	}
	if err := wm.checklists.AssertGateSatisfied(task, models.StateReadyToCommit); err != nil {
		return nil, fmt.Errorf("completing task %s: %w", task.ID, err)
	}

	now := wm.now().UTC().Format(time.RFC3339)
	task.Status = models.StatusDone
	task.CompletedAt = now
	if review := task.Checklist(models.StateReviewing); review != nil && task.ReviewChecklist == nil {
		snapshot := *review
		snapshot.Items = append([]models.ChecklistItem(nil), review.Items...)
		task.ReviewChecklist = &snapshot
	}

	next := wm.queue.NextQueued(wm.cmp)
	if next != nil {
		next.Status = models.StatusActive
		next.StartedAt = now
	}

	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("completing task %s: %w", task.ID, err)
	}

	// Clear the completed task's working context, then regenerate for the
	// promoted task if there is one.
	if wm.renderer != nil {
		_ = wm.renderer.Clear(task.ID)
	}
	if next != nil {
		if err := wm.syncCache(next); err != nil {
			return nil, fmt.Errorf("completing task %s: activating %s: %w", task.ID, next.ID, err)
		}
		wm.render(next, nil)
	} else {
		if err := wm.cache.Backup(); err != nil {
			return nil, fmt.Errorf("completing task %s: %w", task.ID, err)
		}
		if err := wm.cache.Remove(); err != nil {
			return nil, fmt.Errorf("completing task %s: %w", task.ID, err)
		}
	}

	data := map[string]any{"task_id": task.ID}
	if next != nil {
		data["promoted"] = next.ID
	}
	wm.record("task.completed", "INFO", fmt.Sprintf("task %s completed", task.ID), data)

	result := &CompletionResult{}
	out := *task
	result.Task = &out
	if next != nil {
		promoted := *next
		result.Promoted = &promoted
	}
	return result, nil
}

// CheckItem marks a checklist item on the active task complete, optionally
// attaching evidence, and persists the change.
func (wm *workflowManager) CheckItem(state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.ChecklistItem, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("checking item: %w", err)
	}
	task := wm.queue.GetActiveTask()
	if task == nil {
		return nil, ErrNoActiveTask
	}
	if state == "" {
		state = task.Workflow.CurrentState
	}

	item, err := wm.checklists.MarkItemComplete(task, state, itemID, evidence)
	if err != nil {
		return nil, err
	}
	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("checking item %s: %w", itemID, err)
	}
	if err := wm.syncCache(task); err != nil {
		return nil, fmt.Errorf("checking item %s: %w", itemID, err)
	}
	wm.render(task, nil)

	wm.record("checklist.item_completed", "INFO",
		fmt.Sprintf("task %s: item %s completed in %s", task.ID, itemID, state),
		map[string]any{"task_id": task.ID, "state": string(state), "item": itemID, "has_evidence": item.Evidence != nil})

	out := *item
	return &out, nil
}

// GetChecklist returns the active task's checklist for the given state,
// initializing it if absent. An empty state means the current state.
func (wm *workflowManager) GetChecklist(state models.WorkflowState) (*models.Checklist, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("getting checklist: %w", err)
	}
	task := wm.queue.GetActiveTask()
	if task == nil {
		return nil, ErrNoActiveTask
	}
	if state == "" {
		state = task.Workflow.CurrentState
	}

	cl, err := wm.checklists.InitializeStateChecklist(task, state)
	if err != nil {
		return nil, err
	}
	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("getting checklist: %w", err)
	}

	out := *cl
	out.Items = append([]models.ChecklistItem(nil), cl.Items...)
	return &out, nil
}

// RepairTask rebuilds a task's state history as the canonical forward walk
// ending at its current state. Explicit remediation for detected
// corruption; never invoked automatically.
func (wm *workflowManager) RepairTask(taskID string) (*models.Task, error) {
	if err := wm.queue.Load(); err != nil {
		return nil, fmt.Errorf("repairing task: %w", err)
	}

	err := wm.queue.UpdateTask(taskID, func(t *models.Task) error {
		return RebuildHistory(t)
	})
	if err != nil {
		return nil, fmt.Errorf("repairing task: %w", err)
	}
	if err := wm.queue.Save(); err != nil {
		return nil, fmt.Errorf("repairing task %s: %w", taskID, err)
	}

	task, err := wm.queue.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.StatusActive {
		if err := wm.syncCache(task); err != nil {
			return nil, fmt.Errorf("repairing task %s: %w", taskID, err)
		}
		wm.render(task, nil)
	}

	wm.record("task.repaired", "WARN", fmt.Sprintf("task %s state history rebuilt", taskID),
		map[string]any{"task_id": taskID})

	out := *task
	return &out, nil
}

// ActiveCache reads the cache file, recovering from corruption by
// resynchronizing from the queue (the source of truth), falling back to
// the newest backup only when the queue has no active task to project.
func (wm *workflowManager) ActiveCache() (*storage.ActiveTaskCache, error) {
	cache, err := wm.cache.Read()
	if err == nil {
		return cache, nil
	}
	if !errors.Is(err, storage.ErrCacheCorrupted) && !errors.Is(err, storage.ErrNoCache) {
		return nil, err
	}

	corrupt := errors.Is(err, storage.ErrCacheCorrupted)

	if qErr := wm.queue.Load(); qErr == nil {
		if task := wm.queue.GetActiveTask(); task != nil {
			if sErr := wm.cache.SyncFromQueue(task, nil); sErr != nil {
				return nil, fmt.Errorf("recovering cache: %w", sErr)
			}
			if corrupt {
				wm.record("cache.rollback", "WARN", "cache regenerated from queue", map[string]any{"task_id": task.ID})
			}
			return wm.cache.Read()
		}
	}

	if corrupt && wm.cache.HasBackup() {
		if rErr := wm.cache.RollbackFromBackup(); rErr != nil {
			return nil, fmt.Errorf("recovering cache: %w", rErr)
		}
		wm.record("cache.rollback", "WARN", "cache restored from backup", nil)
		return wm.cache.Read()
	}

	return nil, err
}
