package cli

import (
	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath    string
	WorkflowMgr core.WorkflowManager
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
)
