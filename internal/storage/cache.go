package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// ErrCacheCorrupted marks an active-task cache file that could not be
// parsed. Unlike queue corruption this is recoverable: the cache is a pure
// projection and can always be regenerated from the queue.
var ErrCacheCorrupted = errors.New("active task cache corrupted")

// ErrNoCache marks a missing cache file.
var ErrNoCache = errors.New("no active task cache")

// CacheStatus is the coarse status recorded in the cache document.
type CacheStatus string

const (
	CacheInProgress CacheStatus = "in_progress"
	CacheCompleted  CacheStatus = "completed"
)

// ActiveTaskCache is the denormalized projection of the one active task,
// written for fast consumption by the CLI and the context renderer. It is
// never the source of truth; sync runs strictly Queue → File.
type ActiveTaskCache struct {
	TaskID       string          `json:"taskId"`
	OriginalGoal string          `json:"originalGoal"`
	Status       CacheStatus     `json:"status"`
	StartedAt    string          `json:"startedAt,omitempty"`
	CompletedAt  string          `json:"completedAt,omitempty"`
	Workflow     models.Workflow `json:"workflow"`
	Requirements []string        `json:"requirements"`
}

// trackedCacheFields are the JSON keys owned by the queue schema. Any other
// key found in an existing cache file is a legacy/custom field eligible for
// preservation during sync.
var trackedCacheFields = map[string]struct{}{
	"taskId":       {},
	"originalGoal": {},
	"status":       {},
	"startedAt":    {},
	"completedAt":  {},
	"workflow":     {},
	"requirements": {},
}

// CacheManager projects the active task into the cache file and supports
// backup-based recovery.
type CacheManager interface {
	Path() string
	Read() (*ActiveTaskCache, error)
	SyncFromQueue(task *models.Task, preserveFields []string) error
	Remove() error
	Backup() error
	HasBackup() bool
	RollbackFromBackup() error
}

type fileCacheManager struct {
	basePath  string
	backupDir string
}

// NewCacheManager creates a CacheManager storing the cache as
// active_task.json under basePath, with backups in backupDir (resolved
// relative to basePath unless absolute).
func NewCacheManager(basePath, backupDir string) CacheManager {
	if backupDir == "" {
		backupDir = ".awc_backups"
	}
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(basePath, backupDir)
	}
	return &fileCacheManager{basePath: basePath, backupDir: backupDir}
}

func (m *fileCacheManager) Path() string {
	return filepath.Join(m.basePath, "active_task.json")
}

// Read parses the cache file. Missing yields ErrNoCache; unparseable yields
// ErrCacheCorrupted so callers can resynchronize from the queue instead of
// crashing.
func (m *fileCacheManager) Read() (*ActiveTaskCache, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCache
		}
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	var cache ActiveTaskCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("reading cache: parsing %s: %v: %w", m.Path(), err, ErrCacheCorrupted)
	}
	return &cache, nil
}

// SyncFromQueue overwrites the cache with fields derived from the queue
// task. preserveFields names keys of the existing cache file that are not
// part of the queue schema and should survive the rewrite (legacy/custom
// fields kept for backward compatibility during migration).
func (m *fileCacheManager) SyncFromQueue(task *models.Task, preserveFields []string) error {
	if task == nil {
		return fmt.Errorf("syncing cache: task is nil")
	}

	cache := ActiveTaskCache{
		TaskID:       task.ID,
		OriginalGoal: task.Goal,
		Status:       CacheInProgress,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
		Workflow:     task.Workflow,
		Requirements: task.Requirements,
	}
	if task.Status == models.StatusDone {
		cache.Status = CacheCompleted
	}

	doc, err := toJSONMap(cache)
	if err != nil {
		return fmt.Errorf("syncing cache: encoding: %w", err)
	}

	// Carry over requested untracked fields from the previous cache file.
	if len(preserveFields) > 0 {
		if old, err := m.readRaw(); err == nil {
			for _, name := range preserveFields {
				if _, tracked := trackedCacheFields[name]; tracked {
					continue
				}
				if v, ok := old[name]; ok {
					doc[name] = v
				}
			}
		}
	}

	if err := os.MkdirAll(m.basePath, 0o750); err != nil {
		return fmt.Errorf("syncing cache: creating directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("syncing cache: marshaling: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(m.Path(), data, 0o600); err != nil {
		return fmt.Errorf("syncing cache: writing file: %w", err)
	}
	return nil
}

// Remove deletes the cache file. Missing is not an error.
func (m *fileCacheManager) Remove() error {
	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache: %w", err)
	}
	return nil
}

// readRaw reads the cache file as a loose key/value document, tolerating
// unknown fields.
func (m *fileCacheManager) readRaw() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func toJSONMap(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
