// Package cli defines the awc command tree. Commands delegate to the core
// services wired in vars.go by the app initializer.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "awc",
	Short: "AI Workflow Core - disciplined task workflow for humans and AI agents",
	Long: `AI Workflow Core (awc) enforces an auditable workflow on a single current
task. Tasks advance through six ordered states (UNDERSTANDING through
READY_TO_COMMIT) with per-state checklists, evidence requirements, and
state-history validation that detects forged progression.

State lives in a canonical task queue document; the active-task cache and
the STATUS/NEXT_STEPS context documents are projections regenerated after
every mutation.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("awc %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
