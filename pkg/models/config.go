package models

// QueueOrdering selects how the completion service picks the next task to
// promote when the active slot frees up.
type QueueOrdering string

const (
	// OrderingFIFO promotes tasks in creation order.
	OrderingFIFO QueueOrdering = "fifo"
	// OrderingPriority promotes by priority (P0 highest), then creation order.
	OrderingPriority QueueOrdering = "priority"
)

// GlobalConfig holds settings loaded from the .awcconfig file.
type GlobalConfig struct {
	// RateLimitEnabled toggles the rate-limit advisor. Disabling it is the
	// supported path for automation contexts; the advisor never hard-fails
	// either way.
	RateLimitEnabled bool
	// QueueOrdering is the promotion policy used after task completion.
	QueueOrdering QueueOrdering
	// RenderContext toggles writing STATUS.txt / NEXT_STEPS.md after
	// mutations.
	RenderContext bool
	// BackupDir is the directory (relative to the base path) holding
	// timestamped cache backups.
	BackupDir string
	// TaskIDPrefix is the prefix of generated task IDs (e.g. TASK-00001).
	TaskIDPrefix string
	// TaskIDPadWidth is the zero-padding width of the numeric ID portion.
	TaskIDPadWidth int
}
