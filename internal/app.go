// Package internal provides the App struct that wires all components of the
// workflow system together and initializes the CLI layer.
package internal

import (
	"os"
	"path/filepath"

	"github.com/shadel/ai-workflow-core/internal/cli"
	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/internal/observability"
	"github.com/shadel/ai-workflow-core/internal/render"
	"github.com/shadel/ai-workflow-core/internal/storage"
)

// App holds all service dependencies for the workflow system.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	QueueMgr storage.QueueManager
	CacheMgr storage.CacheManager

	// Core services
	Patterns    core.PatternProvider
	Checklists  core.ChecklistManager
	RateLimit   core.RateLimitAdvisor
	WorkflowMgr core.WorkflowManager

	// Context rendering
	Renderer *render.FileRenderer

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// NewApp creates and wires all components of the workflow system. basePath
// is the root directory where all data is stored (the directory holding
// task_queue.json, active_task.json, and .awcconfig).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	globalCfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		// Use defaults if the config file is unreadable.
		globalCfg = core.DefaultGlobalConfig()
	}
	if err := app.ConfigMgr.ValidateConfig(globalCfg); err != nil {
		return nil, err
	}

	// --- Storage layer ---
	app.QueueMgr = storage.NewQueueManager(basePath, globalCfg.TaskIDPrefix, globalCfg.TaskIDPadWidth)
	app.CacheMgr = storage.NewCacheManager(basePath, globalCfg.BackupDir)

	// --- Core services ---
	app.Patterns = core.NewPatternProvider(basePath)
	app.Checklists = core.NewChecklistManager(app.Patterns)
	app.RateLimit = core.NewRateLimitAdvisor(globalCfg.RateLimitEnabled)

	// --- Context rendering ---
	var renderer core.ContextRenderer
	if globalCfg.RenderContext {
		app.Renderer = render.NewFileRenderer(basePath)
		renderer = app.Renderer
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, ".awc_events.jsonl")
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if the log can't be created.
		app.EventLog = nil
	}
	var recorder core.EventRecorder
	if app.EventLog != nil {
		recorder = observability.NewRecorder(app.EventLog)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds())
	}

	// --- Workflow orchestrator ---
	app.WorkflowMgr = core.NewWorkflowManager(core.WorkflowConfig{
		Queue:      app.QueueMgr,
		Cache:      app.CacheMgr,
		Checklists: app.Checklists,
		RateLimit:  app.RateLimit,
		Renderer:   renderer,
		Events:     recorder,
		Comparator: core.ComparatorFor(globalCfg.QueueOrdering),
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.WorkflowMgr = app.WorkflowMgr
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc
	cli.AlertEngine = app.AlertEngine

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the base path for the workflow data directory.
// It checks the AWC_HOME env var, then walks up from the current directory
// looking for an existing task_queue.json or .awcconfig.
func ResolveBasePath() string {
	if home := os.Getenv("AWC_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "task_queue.json")); err == nil {
			return dir
		}
		if _, err := os.Stat(filepath.Join(dir, ".awcconfig")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
