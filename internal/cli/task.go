package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

var (
	warnStrongStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnMildStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	stateStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	doneStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the task workflow (create, sync, complete, status, repair)",
	Long: `Task workflow commands.

Create tasks, advance the active task through workflow states, complete it,
inspect the queue, and repair corrupted state history.`,
}

var (
	taskCreateRequirements []string
	taskCreatePriority     string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <goal>",
	Short: "Create a new task",
	Long: `Create a new task with the given goal.

The task becomes active immediately if no other task is active; otherwise
it waits in the queue and is promoted when the active task completes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		goal := strings.Join(args, " ")
		task, err := WorkflowMgr.CreateTask(goal, taskCreateRequirements, models.Priority(taskCreatePriority))
		if err != nil {
			return err
		}

		fmt.Printf("Created task %s\n", task.ID)
		fmt.Printf("  Goal:   %s\n", task.Goal)
		fmt.Printf("  Status: %s\n", task.Status)
		fmt.Printf("  State:  %s\n", task.Workflow.CurrentState)
		if len(task.Requirements) > 0 {
			fmt.Printf("  Requirements: %s\n", strings.Join(task.Requirements, ", "))
		}
		return nil
	},
}

var taskSyncState string

var taskSyncCmd = &cobra.Command{
	Use:   "sync --state <STATE>",
	Short: "Advance the active task to the next workflow state",
	Long: `Advance the active task to the given workflow state and resynchronize the
active-task cache from the queue.

Only the immediate next state in the canonical order is legal:
UNDERSTANDING -> DESIGNING -> IMPLEMENTING -> TESTING -> REVIEWING -> READY_TO_COMMIT.

The recorded state history is validated first; the current state's
checklist must be satisfied; rapid transitions produce a warning but are
never blocked by timing alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}
		if taskSyncState == "" {
			return fmt.Errorf("--state is required (one of %s)", strings.Join(stateNames(), ", "))
		}

		result, err := WorkflowMgr.UpdateTaskState(models.WorkflowState(taskSyncState))
		// The advisory warning is printed even when the transition failed:
		// the advisor runs before transition validation by design.
		if result != nil && result.Warning != nil {
			printWarning(result.Warning)
		}
		if err != nil {
			return err
		}

		task := result.Task
		fmt.Printf("Task %s advanced to %s\n", task.ID, stateStyle.Render(string(task.Workflow.CurrentState)))
		if cl := task.Checklist(task.Workflow.CurrentState); cl != nil && len(cl.Items) > 0 {
			fmt.Printf("  %d checklist item(s) ahead; see 'awc checklist show'\n", len(cl.Items))
		}
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the active task",
	Long: `Complete the active task. The task must be at READY_TO_COMMIT.

On success the task is marked done, its working context is cleared, and the
next queued task (if any) is promoted to active. Completing an
already-completed task reports success again rather than erroring.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		result, err := WorkflowMgr.CompleteTask()
		if err != nil {
			return err
		}

		if result.AlreadyCompleted {
			fmt.Printf("Task %s is already completed.\n", result.Task.ID)
			return nil
		}

		fmt.Printf("%s Task %s completed\n", doneStyle.Render("✓"), result.Task.ID)
		if result.Promoted != nil {
			fmt.Printf("  Next task activated: %s (%s)\n", result.Promoted.ID, result.Promoted.Goal)
		} else {
			fmt.Println("  Queue is empty; nothing to activate.")
		}
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active task and the queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		active, err := WorkflowMgr.GetActiveTask()
		switch {
		case errors.Is(err, core.ErrNoActiveTask):
			fmt.Println("No active task.")
		case err != nil:
			return err
		default:
			printActiveTask(active)
		}

		tasks, err := WorkflowMgr.GetAllTasks()
		if err != nil {
			return err
		}
		printQueue(tasks)
		return nil
	},
}

var taskRepairCmd = &cobra.Command{
	Use:   "repair <task-id>",
	Short: "Rebuild a task's corrupted state history",
	Long: `Rebuild the recorded state history of a task as the canonical forward walk
ending at its current state.

This is the explicit remediation for STATE HISTORY CORRUPTION errors. It is
never run automatically, and the repair itself is recorded in the event log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		task, err := WorkflowMgr.RepairTask(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Rebuilt state history for %s (%d entries, current state %s)\n",
			task.ID, len(task.Workflow.StateHistory), task.Workflow.CurrentState)
		return nil
	},
}

func printWarning(w *core.RateLimitWarning) {
	style := warnMildStyle
	if w.Level == core.WarnStrong {
		style = warnStrongStyle
	}
	fmt.Println(style.Render(w.Message))
}

func printActiveTask(task *models.Task) {
	fmt.Printf("Active task: %s\n", task.ID)
	fmt.Printf("  Goal:  %s\n", task.Goal)
	fmt.Printf("  State: %s (entered %s)\n", stateStyle.Render(string(task.Workflow.CurrentState)), task.Workflow.StateEnteredAt)
	if cl := task.Checklist(task.Workflow.CurrentState); cl != nil {
		fmt.Printf("  Checklist: %d%% complete\n", core.CompletionPercentage(cl))
	}
	if len(task.Requirements) > 0 {
		fmt.Printf("  Requirements: %s\n", strings.Join(task.Requirements, ", "))
	}
}

func printQueue(tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Println("Queue is empty.")
		return
	}

	fmt.Printf("\n== Queue (%d task(s)) ==\n", len(tasks))
	fmt.Printf("  %-12s %-8s %-16s %-4s %s\n", "ID", "STATUS", "STATE", "PRI", "GOAL")
	fmt.Printf("  %-12s %-8s %-16s %-4s %s\n", "----", "------", "-----", "---", "----")
	for _, t := range tasks {
		fmt.Printf("  %-12s %-8s %-16s %-4s %s\n", t.ID, t.Status, t.Workflow.CurrentState, t.Priority, t.Goal)
	}
}

func stateNames() []string {
	states := models.WorkflowStates()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}

// completeStates returns valid workflow state values for shell completion.
func completeStates(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return stateNames(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	taskCreateCmd.Flags().StringSliceVar(&taskCreateRequirements, "requirements", nil, "Comma-separated requirement identifiers")
	taskCreateCmd.Flags().StringVar(&taskCreatePriority, "priority", "", "Task priority (P0, P1, P2, P3); used by priority queue ordering")

	taskSyncCmd.Flags().StringVar(&taskSyncState, "state", "", "Destination workflow state")
	_ = taskSyncCmd.RegisterFlagCompletionFunc("state", completeStates)

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskSyncCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskRepairCmd)

	rootCmd.AddCommand(taskCmd)
}
