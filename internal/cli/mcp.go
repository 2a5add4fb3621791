package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	awcmcp "github.com/shadel/ai-workflow-core/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the awc MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the awc MCP server on stdio",
	Long: `Start the awc MCP server on stdio transport.

The server exposes the workflow as MCP tools that AI coding assistants can
call: get_task, list_tasks, update_task_state, complete_task,
check_checklist_item, get_checklist, get_metrics, get_alerts. All tools go
through the same gates as the CLI.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		srv := awcmcp.NewServer(WorkflowMgr, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
