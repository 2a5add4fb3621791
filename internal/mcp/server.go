// Package mcp provides an MCP (Model Context Protocol) server that exposes
// awc workflow operations as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/internal/observability"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

// Server wraps awc services and exposes them as MCP tools. Tool handlers go
// through the same WorkflowManager as the CLI, so every gate (history
// validation, checklist evidence, transition order) applies to automated
// callers too.
type Server struct {
	server      *gomcp.Server
	workflowMgr core.WorkflowManager
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server with the given service dependencies.
// metricsCalc and alertEngine may be nil if observability is disabled.
func NewServer(workflowMgr core.WorkflowManager, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		workflowMgr: workflowMgr,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "awc", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getTaskInput struct {
	TaskID string `json:"task_id,omitempty" jsonschema:"task identifier (e.g. TASK-00042); empty means the active task"`
}

type taskOutput struct {
	ID           string   `json:"id"`
	Goal         string   `json:"goal"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority,omitempty"`
	State        string   `json:"workflow_state"`
	StateEntered string   `json:"state_entered_at,omitempty"`
	Created      string   `json:"created_at"`
	Requirements []string `json:"requirements,omitempty"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status (queued, active, done)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type updateTaskStateInput struct {
	State string `json:"state" jsonschema:"required,the destination workflow state (UNDERSTANDING, DESIGNING, IMPLEMENTING, TESTING, REVIEWING, READY_TO_COMMIT)"`
}

type updateTaskStateOutput struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

type completeTaskInput struct{}

type completeTaskOutput struct {
	Message          string `json:"message"`
	AlreadyCompleted bool   `json:"already_completed"`
	PromotedTaskID   string `json:"promoted_task_id,omitempty"`
}

type checkItemInput struct {
	ItemID              string   `json:"item_id" jsonschema:"required,the checklist item identifier"`
	State               string   `json:"state,omitempty" jsonschema:"workflow state the item belongs to; empty means the current state"`
	EvidenceType        string   `json:"evidence_type,omitempty" jsonschema:"evidence type (file_created, file_modified, test_passed, command_run, manual)"`
	EvidenceDescription string   `json:"evidence_description,omitempty"`
	EvidenceFiles       []string `json:"evidence_files,omitempty"`
}

type checkItemOutput struct {
	Message   string `json:"message"`
	Satisfied bool   `json:"satisfied"`
}

type getChecklistInput struct {
	State string `json:"state,omitempty" jsonschema:"workflow state to inspect; empty means the current state"`
}

type checklistItemOutput struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Required         bool   `json:"required"`
	Completed        bool   `json:"completed"`
	EvidenceRequired bool   `json:"evidence_required"`
	EvidenceAttached bool   `json:"evidence_attached"`
}

type getChecklistOutput struct {
	State      string                `json:"state"`
	Items      []checklistItemOutput `json:"items"`
	Completion int                   `json:"completion_percent"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksRepaired      int            `json:"tasks_repaired"`
	TransitionsByState map[string]int `json:"transitions_by_state"`
	RateLimitWarnings  int            `json:"ratelimit_warnings"`
	CorruptionErrors   int            `json:"corruption_errors"`
	EventCount         int            `json:"event_count"`
	OldestEvent        string         `json:"oldest_event,omitempty"`
	NewestEvent        string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get task details by ID, or the active task when no ID is given. Returns goal, status, workflow state, and requirements.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks in the queue with an optional status filter (queued, active, done).",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task_state",
		Description: "Advance the active task to the next workflow state. Only the immediate successor state is legal, and the current state's checklist must be satisfied.",
	}, s.handleUpdateTaskState)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "complete_task",
		Description: "Complete the active task (must be at READY_TO_COMMIT). Idempotent: completing an already-completed task succeeds again.",
	}, s.handleCompleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_checklist_item",
		Description: "Mark a checklist item on the active task complete, optionally attaching evidence. Items requiring evidence stay unsatisfied until it is attached.",
	}, s.handleCheckItem)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_checklist",
		Description: "Get the active task's checklist for a workflow state, including completion percentage and evidence status per item.",
	}, s.handleGetChecklist)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated workflow metrics from the event log: task counts, transitions per state, warnings, and corruption detections.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (stale states, oversized queue, rapid transition bursts, history corruption).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	var task *models.Task
	var err error

	if input.TaskID == "" {
		task, err = s.workflowMgr.GetActiveTask()
	} else {
		tasks, listErr := s.workflowMgr.GetAllTasks()
		if listErr != nil {
			return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, listErr)), taskOutput{}, nil
		}
		for i := range tasks {
			if tasks[i].ID == input.TaskID {
				task = &tasks[i]
				break
			}
		}
		if task == nil {
			err = fmt.Errorf("task %s not found", input.TaskID)
		}
	}
	if err != nil {
		return errorResult(fmt.Sprintf("getting task: %s", err)), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	tasks, err := s.workflowMgr.GetAllTasks()
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{}
	for i := range tasks {
		if input.Status != "" && string(tasks[i].Status) != input.Status {
			continue
		}
		out.Tasks = append(out.Tasks, taskToOutput(&tasks[i]))
	}
	out.Count = len(out.Tasks)

	return nil, out, nil
}

func (s *Server) handleUpdateTaskState(_ context.Context, _ *gomcp.CallToolRequest, input updateTaskStateInput) (*gomcp.CallToolResult, updateTaskStateOutput, error) {
	if input.State == "" {
		return errorResult("state is required"), updateTaskStateOutput{}, nil
	}
	if !models.IsValidWorkflowState(models.WorkflowState(input.State)) {
		return errorResult(fmt.Sprintf("invalid workflow state %q", input.State)), updateTaskStateOutput{}, nil
	}

	result, err := s.workflowMgr.UpdateTaskState(models.WorkflowState(input.State))

	out := updateTaskStateOutput{}
	// The advisory warning is surfaced even on failure, matching the CLI.
	if result != nil && result.Warning != nil {
		out.Warning = result.Warning.Message
	}
	if err != nil {
		res := errorResult(fmt.Sprintf("updating task state: %s", err))
		return res, out, nil
	}

	out.Message = fmt.Sprintf("task %s advanced to %s", result.Task.ID, result.Task.Workflow.CurrentState)
	return nil, out, nil
}

func (s *Server) handleCompleteTask(_ context.Context, _ *gomcp.CallToolRequest, _ completeTaskInput) (*gomcp.CallToolResult, completeTaskOutput, error) {
	result, err := s.workflowMgr.CompleteTask()
	if err != nil {
		return errorResult(fmt.Sprintf("completing task: %s", err)), completeTaskOutput{}, nil
	}

	out := completeTaskOutput{AlreadyCompleted: result.AlreadyCompleted}
	if result.AlreadyCompleted {
		out.Message = fmt.Sprintf("task %s is already completed", result.Task.ID)
		return nil, out, nil
	}

	out.Message = fmt.Sprintf("task %s completed", result.Task.ID)
	if result.Promoted != nil {
		out.PromotedTaskID = result.Promoted.ID
	}
	return nil, out, nil
}

func (s *Server) handleCheckItem(_ context.Context, _ *gomcp.CallToolRequest, input checkItemInput) (*gomcp.CallToolResult, checkItemOutput, error) {
	if input.ItemID == "" {
		return errorResult("item_id is required"), checkItemOutput{}, nil
	}

	var evidence *models.Evidence
	if input.EvidenceType != "" || input.EvidenceDescription != "" {
		evidence = &models.Evidence{
			Type:        models.EvidenceType(input.EvidenceType),
			Description: input.EvidenceDescription,
			Files:       input.EvidenceFiles,
		}
		if evidence.Type == "" {
			evidence.Type = models.EvidenceManual
		}
	}

	item, err := s.workflowMgr.CheckItem(models.WorkflowState(input.State), input.ItemID, evidence)
	if err != nil {
		return errorResult(fmt.Sprintf("checking item %s: %s", input.ItemID, err)), checkItemOutput{}, nil
	}

	out := checkItemOutput{
		Message:   fmt.Sprintf("item %s marked complete", item.ID),
		Satisfied: item.Satisfied(),
	}
	if !out.Satisfied {
		out.Message += " (evidence still required to satisfy the gate)"
	}
	return nil, out, nil
}

func (s *Server) handleGetChecklist(_ context.Context, _ *gomcp.CallToolRequest, input getChecklistInput) (*gomcp.CallToolResult, getChecklistOutput, error) {
	cl, err := s.workflowMgr.GetChecklist(models.WorkflowState(input.State))
	if err != nil {
		return errorResult(fmt.Sprintf("getting checklist: %s", err)), getChecklistOutput{}, nil
	}

	out := getChecklistOutput{
		State:      string(cl.State),
		Items:      make([]checklistItemOutput, len(cl.Items)),
		Completion: core.CompletionPercentage(cl),
	}
	for i, item := range cl.Items {
		out.Items[i] = checklistItemOutput{
			ID:               item.ID,
			Title:            item.Title,
			Required:         item.Required,
			Completed:        item.Completed,
			EvidenceRequired: item.EvidenceRequired,
			EvidenceAttached: item.Evidence != nil,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:       metrics.TasksCreated,
		TasksCompleted:     metrics.TasksCompleted,
		TasksRepaired:      metrics.TasksRepaired,
		TransitionsByState: metrics.TransitionsByState,
		RateLimitWarnings:  metrics.RateLimitWarnings,
		CorruptionErrors:   metrics.CorruptionErrors,
		EventCount:         metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	return taskOutput{
		ID:           t.ID,
		Goal:         t.Goal,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		State:        string(t.Workflow.CurrentState),
		StateEntered: t.Workflow.StateEnteredAt,
		Created:      t.CreatedAt,
		Requirements: t.Requirements,
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		TransitionsByState: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
