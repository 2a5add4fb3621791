package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shadel/ai-workflow-core/internal/core"
	"github.com/shadel/ai-workflow-core/pkg/models"
)

var checklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Inspect and complete the active task's state checklists",
}

var checklistShowState string

var checklistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the checklist for the active task's current (or given) state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		cl, err := WorkflowMgr.GetChecklist(models.WorkflowState(checklistShowState))
		if err != nil {
			return err
		}

		fmt.Printf("Checklist for %s (%d%% complete)\n", cl.State, core.CompletionPercentage(cl))
		for _, item := range cl.Items {
			marker := "[ ]"
			if item.Completed {
				marker = "[x]"
			}
			suffix := ""
			if item.Required {
				suffix = " (required)"
			}
			if item.EvidenceRequired {
				if item.Evidence != nil {
					suffix += " [evidence attached]"
				} else {
					suffix += " [evidence required]"
				}
			}
			fmt.Printf("  %s %-28s %s%s\n", marker, item.ID, item.Title, suffix)
		}
		return nil
	},
}

var (
	checkEvidenceType string
	checkEvidenceDesc string
	checkEvidenceFile []string
	checkTestResults  string
	checkState        string
)

var checklistCheckCmd = &cobra.Command{
	Use:   "check <item-id>",
	Short: "Mark a checklist item complete, optionally attaching evidence",
	Long: `Mark a checklist item on the active task complete.

Items that require evidence stay unsatisfied for gating purposes until
evidence is attached, even after being marked complete. Attach evidence with
--evidence-type plus --evidence, and optionally --files or --test-results.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkflowMgr == nil {
			return fmt.Errorf("workflow manager not initialized")
		}

		var evidence *models.Evidence
		if checkEvidenceType != "" || checkEvidenceDesc != "" {
			evidence = &models.Evidence{
				Type:        models.EvidenceType(checkEvidenceType),
				Description: checkEvidenceDesc,
				Files:       checkEvidenceFile,
				TestResults: checkTestResults,
			}
			if evidence.Type == "" {
				evidence.Type = models.EvidenceManual
			}
		}

		item, err := WorkflowMgr.CheckItem(models.WorkflowState(checkState), args[0], evidence)
		if err != nil {
			return err
		}

		fmt.Printf("Checked off %s: %s\n", item.ID, item.Title)
		if item.EvidenceRequired && item.Evidence == nil {
			fmt.Println("  Note: this item requires evidence; it will not satisfy the state gate until evidence is attached.")
		}
		return nil
	},
}

func init() {
	checklistShowCmd.Flags().StringVar(&checklistShowState, "state", "", "Workflow state to show (defaults to the current state)")
	_ = checklistShowCmd.RegisterFlagCompletionFunc("state", completeStates)

	checklistCheckCmd.Flags().StringVar(&checkState, "state", "", "Workflow state the item belongs to (defaults to the current state)")
	checklistCheckCmd.Flags().StringVar(&checkEvidenceType, "evidence-type", "", "Evidence type (file_created, file_modified, test_passed, command_run, manual)")
	checklistCheckCmd.Flags().StringVar(&checkEvidenceDesc, "evidence", "", "Evidence description")
	checklistCheckCmd.Flags().StringSliceVar(&checkEvidenceFile, "files", nil, "Files backing the evidence")
	checklistCheckCmd.Flags().StringVar(&checkTestResults, "test-results", "", "Test output backing the evidence")
	_ = checklistCheckCmd.RegisterFlagCompletionFunc("state", completeStates)

	checklistCmd.AddCommand(checklistShowCmd)
	checklistCmd.AddCommand(checklistCheckCmd)

	rootCmd.AddCommand(checklistCmd)
}
