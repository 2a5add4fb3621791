// Package storage provides the file-backed stores of the workflow system:
// the canonical task queue document and the active-task cache projection.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// ErrQueueCorrupted marks a queue document that could not be parsed or
// fails structural validation. It is deliberately distinct from "no active
// task": callers must never conflate "nothing to do" with "data is broken".
var ErrQueueCorrupted = errors.New("task queue corrupted")

// ErrTaskNotFound marks a lookup for a task id the queue does not hold.
var ErrTaskNotFound = errors.New("task not found")

// Comparator orders queued tasks for promotion. It reports whether a
// should be promoted before b.
type Comparator func(a, b models.Task) bool

// FIFOComparator promotes tasks in creation order.
func FIFOComparator(a, b models.Task) bool {
	return a.CreatedAt < b.CreatedAt
}

// priorityRank maps priorities to sort ranks; unset priorities sort last.
func priorityRank(p models.Priority) int {
	switch p {
	case models.P0:
		return 0
	case models.P1:
		return 1
	case models.P2:
		return 2
	case models.P3:
		return 3
	default:
		return 4
	}
}

// PriorityComparator promotes by priority (P0 highest), then creation order.
func PriorityComparator(a, b models.Task) bool {
	ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
	if ra != rb {
		return ra < rb
	}
	return a.CreatedAt < b.CreatedAt
}

// QueueFile is the top-level structure of task_queue.json.
type QueueFile struct {
	Version string        `json:"version"`
	NextID  int           `json:"nextId"`
	Tasks   []models.Task `json:"tasks"`
}

// QueueManager is the single authoritative record of all tasks. Every
// mutation follows load → mutate in memory → save, rewriting the whole
// document to avoid partial updates.
type QueueManager interface {
	Load() error
	Save() error
	CreateTask(goal string, requirements []string, priority models.Priority) (*models.Task, error)
	GetTask(taskID string) (*models.Task, error)
	GetActiveTask() *models.Task
	GetAllTasks() []models.Task
	UpdateTask(taskID string, mutate func(*models.Task) error) error
	NextQueued(cmp Comparator) *models.Task
	LatestCompleted() *models.Task
}

type fileQueueManager struct {
	basePath string
	idPrefix string
	idWidth  int
	data     QueueFile
}

// NewQueueManager creates a QueueManager backed by a task_queue.json file
// in the given base directory. idPrefix and idPadWidth control generated
// task IDs (e.g. TASK-00001).
func NewQueueManager(basePath, idPrefix string, idPadWidth int) QueueManager {
	return &fileQueueManager{
		basePath: basePath,
		idPrefix: idPrefix,
		idWidth:  idPadWidth,
		data: QueueFile{
			Version: "1.0",
		},
	}
}

func (m *fileQueueManager) filePath() string {
	return filepath.Join(m.basePath, "task_queue.json")
}

// Load reads the queue document. A missing file yields an empty queue; an
// unparseable or structurally invalid document yields ErrQueueCorrupted.
func (m *fileQueueManager) Load() error {
	data, err := os.ReadFile(m.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			m.data = QueueFile{Version: "1.0"}
			return nil
		}
		return fmt.Errorf("loading queue: %w", err)
	}

	var qf QueueFile
	if err := json.Unmarshal(data, &qf); err != nil {
		return fmt.Errorf("loading queue: parsing %s: %v: %w", m.filePath(), err, ErrQueueCorrupted)
	}
	if err := validateQueue(qf); err != nil {
		return fmt.Errorf("loading queue: %v: %w", err, ErrQueueCorrupted)
	}
	m.data = qf
	return nil
}

// validateQueue enforces the structural invariants of the document:
// unique IDs and at most one active task.
func validateQueue(qf QueueFile) error {
	seen := make(map[string]struct{}, len(qf.Tasks))
	activeCount := 0
	for _, t := range qf.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task with empty id")
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Status == models.StatusActive {
			activeCount++
		}
	}
	if activeCount > 1 {
		return fmt.Errorf("%d tasks marked active, expected at most one", activeCount)
	}
	return nil
}

func (m *fileQueueManager) Save() error {
	if err := os.MkdirAll(m.basePath, 0o750); err != nil {
		return fmt.Errorf("saving queue: creating directory: %w", err)
	}
	data, err := json.MarshalIndent(&m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("saving queue: marshaling: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(m.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving queue: writing file: %w", err)
	}
	return nil
}

// CreateTask assigns the next sequential ID and enqueues the task. The new
// task becomes active if and only if no other task currently holds active
// status; otherwise it waits in the queue.
func (m *fileQueueManager) CreateTask(goal string, requirements []string, priority models.Priority) (*models.Task, error) {
	if goal == "" {
		return nil, fmt.Errorf("creating task: goal must not be empty")
	}

	m.data.NextID++
	id := fmt.Sprintf("%s-%d", m.idPrefix, m.data.NextID)
	if m.idWidth > 0 {
		id = fmt.Sprintf("%s-%0*d", m.idPrefix, m.idWidth, m.data.NextID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	task := models.Task{
		ID:        id,
		Goal:      goal,
		Status:    models.StatusQueued,
		Priority:  priority,
		CreatedAt: now,
		Workflow: models.Workflow{
			CurrentState:   models.StateUnderstanding,
			StateEnteredAt: now,
			StateHistory:   []models.StateHistoryEntry{},
		},
		Requirements: []string{},
	}
	task.AddRequirements(requirements...)

	if m.GetActiveTask() == nil {
		task.Status = models.StatusActive
		task.StartedAt = now
	}

	m.data.Tasks = append(m.data.Tasks, task)
	return &m.data.Tasks[len(m.data.Tasks)-1], nil
}

func (m *fileQueueManager) GetTask(taskID string) (*models.Task, error) {
	for i := range m.data.Tasks {
		if m.data.Tasks[i].ID == taskID {
			return &m.data.Tasks[i], nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
}

// GetActiveTask returns the single active task, or nil when no task is
// active. An empty result is not an error; queue corruption surfaces from
// Load, never here.
func (m *fileQueueManager) GetActiveTask() *models.Task {
	for i := range m.data.Tasks {
		if m.data.Tasks[i].Status == models.StatusActive {
			return &m.data.Tasks[i]
		}
	}
	return nil
}

func (m *fileQueueManager) GetAllTasks() []models.Task {
	out := make([]models.Task, len(m.data.Tasks))
	copy(out, m.data.Tasks)
	return out
}

// UpdateTask applies mutate to the stored task. This is the single channel
// through which workflow changes reach the document; the caller is
// responsible for the surrounding Load/Save pair.
func (m *fileQueueManager) UpdateTask(taskID string, mutate func(*models.Task) error) error {
	task, err := m.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if err := mutate(task); err != nil {
		return fmt.Errorf("updating task %s: %w", taskID, err)
	}
	return nil
}

// NextQueued returns the queued task that the comparator orders first, or
// nil when nothing is waiting.
func (m *fileQueueManager) NextQueued(cmp Comparator) *models.Task {
	if cmp == nil {
		cmp = FIFOComparator
	}
	var best *models.Task
	for i := range m.data.Tasks {
		t := &m.data.Tasks[i]
		if t.Status != models.StatusQueued {
			continue
		}
		if best == nil || cmp(*t, *best) {
			best = t
		}
	}
	return best
}

// LatestCompleted returns the most recently completed task, or nil. Used by
// the completion service to keep repeated complete calls idempotent after
// the active slot has already been cleared.
func (m *fileQueueManager) LatestCompleted() *models.Task {
	var latest *models.Task
	for i := range m.data.Tasks {
		t := &m.data.Tasks[i]
		if t.Status != models.StatusDone {
			continue
		}
		if latest == nil || t.CompletedAt > latest.CompletedAt {
			latest = t
		}
	}
	return latest
}
