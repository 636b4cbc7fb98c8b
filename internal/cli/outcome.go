package cli

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/server"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <prediction-id> <actual>",
	Short: "Record the actual outcome of a prediction",
	Long: `Report what actually happened for an earlier prediction. The outcome is
parsed as JSON and falls back to a plain string.

Examples:
  quorum outcome 3f2a... 12.5
  quorum outcome 3f2a... '"approve"'`,
	Args: cobra.ExactArgs(2),
	RunE: runOutcome,
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
}

func runOutcome(cmd *cobra.Command, args []string) error {
	req := server.OutcomeRequest{
		PredictionID: args[0],
		Actual:       parseValue(args[1]),
	}

	var report engine.OutcomeReport
	if err := NewClient().PostJSON("/v1/outcomes", req, http.StatusOK, &report); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	if jsonOut {
		return printJSON(report)
	}

	fmt.Printf("Prediction %s: accuracy %.3f\n", report.PredictionID, report.Accuracy)

	ids := make([]string, 0, len(report.Predictors))
	for id := range report.Predictors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %-20s %.3f\n", id, report.Predictors[id])
	}

	return nil
}
