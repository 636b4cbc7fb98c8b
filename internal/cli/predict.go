package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/prediction"
)

var (
	predictUser       string
	predictTask       string
	predictHour       int
	predictWorkload   string
	predictActivities []string
	predictInput      string
	predictMaxModels  int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Request an ensemble prediction",
	Long: `Request a prediction from the running server. The input is parsed as JSON
and falls back to a plain string.

Examples:
  quorum predict --task forecast --input '{"x": 4}'
  quorum predict --task forecast --workload high --max-models 2`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictUser, "user-id", "", "user the prediction is made for")
	predictCmd.Flags().StringVarP(&predictTask, "task", "t", "", "task type (required)")
	predictCmd.Flags().IntVar(&predictHour, "hour", -1, "hour of day (default: current hour)")
	predictCmd.Flags().StringVar(&predictWorkload, "workload", string(prediction.WorkloadMedium), "workload: low, medium or high")
	predictCmd.Flags().StringSliceVar(&predictActivities, "activity", nil, "recent activity (repeatable)")
	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "prediction input as JSON")
	predictCmd.Flags().IntVar(&predictMaxModels, "max-models", 0, "maximum number of selected models")
	_ = predictCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	pctx, err := buildContext(predictUser, predictTask, predictHour, predictWorkload, predictActivities)
	if err != nil {
		return err
	}

	req := engine.Request{
		Input:     parseValue(predictInput),
		Context:   pctx,
		MaxModels: predictMaxModels,
	}

	var resp engine.Response
	if err := NewClient().PostJSON("/v1/predict", req, 200, &resp); err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	if jsonOut {
		return printJSON(resp)
	}

	p := resp.Prediction
	fmt.Printf("Prediction:   %s\n", p.ID)
	fmt.Printf("Value:        %v\n", p.Value)
	fmt.Printf("Method:       %s\n", p.Method)
	fmt.Printf("Contributors: %s\n", strings.Join(p.Contributors, ", "))
	if resp.Confidence != nil {
		fmt.Printf("Confidence:   %.3f\n", resp.Confidence.Overall)
		if verbose {
			for _, f := range resp.Confidence.Factors {
				fmt.Printf("  %-22s %+.3f  %s\n", f.Name, f.Impact, f.Description)
			}
		}
	}
	if verbose && len(resp.Selected) > 0 {
		fmt.Println("Selected:")
		for _, s := range resp.Selected {
			fmt.Printf("  %-20s %.3f\n", s.PredictorID, s.Score)
		}
	}

	return nil
}

// buildContext assembles a prediction context from command flags.
// A negative hour means the current local hour.
func buildContext(userID, task string, hour int, workload string, activities []string) (prediction.Context, error) {
	if hour < 0 {
		hour = time.Now().Hour()
	}
	if hour > 23 {
		return prediction.Context{}, fmt.Errorf("hour must be between 0 and 23, got %d", hour)
	}
	w := prediction.Workload(workload)
	if !w.IsValid() {
		return prediction.Context{}, fmt.Errorf("invalid workload: %s (must be low, medium or high)", workload)
	}
	return prediction.NewContext(userID, task, hour, w, activities...), nil
}

// parseValue decodes s as JSON, keeping it as a string when it is not valid JSON.
// An empty string yields nil.
func parseValue(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
