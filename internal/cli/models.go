package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/server"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered predictors and their performance",
	RunE:  runModels,
}

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show how well confidence scores match observed accuracy",
	RunE:  runCalibration,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(calibrationCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	var models []engine.ModelInfo
	if err := NewClient().GetJSON("/v1/models", &models); err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	if jsonOut {
		return printJSON(models)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tWEIGHT\tENABLED\tACCURACY\tLATENCY\tSUCCESS\tSAMPLES")
	for _, m := range models {
		e := m.Entry
		if p := m.Performance; p != nil {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%t\t%.3f\t%.1fms\t%.2f\t%d\n",
				e.PredictorID, e.Type(), e.Weight, e.Enabled,
				p.EffectiveAccuracy(), p.LatencyMs, p.SuccessRate, p.SampleCount)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%t\t-\t-\t-\t0\n", e.PredictorID, e.Type(), e.Weight, e.Enabled)
		}
	}
	return w.Flush()
}

func runCalibration(cmd *cobra.Command, args []string) error {
	var resp server.CalibrationResponse
	if err := NewClient().GetJSON("/v1/calibration", &resp); err != nil {
		return fmt.Errorf("failed to get calibration: %w", err)
	}

	if jsonOut {
		return printJSON(resp)
	}

	c := resp.Calibration
	fmt.Printf("Ledger size:        %d\n", resp.LedgerSize)
	fmt.Printf("Calibration error:  %.3f\n", c.Error)
	fmt.Printf("Overconfidence:     %.1f%%\n", c.OverconfidenceRate*100)
	fmt.Printf("Underconfidence:    %.1f%%\n", c.UnderconfidenceRate*100)
	fmt.Printf("Sharpness:          %.3f\n", c.Sharpness)

	if verbose {
		fmt.Println("\nBins:")
		for _, b := range resp.Bins {
			if b.Count == 0 {
				continue
			}
			fmt.Printf("  [%.1f, %.1f)  n=%-6d confidence %.3f  accuracy %.3f\n",
				b.Lower, b.Upper, b.Count, b.AvgConfidence, b.AvgAccuracy)
		}
	}
	return nil
}
