package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haskel/quorum/internal/experiment"
)

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Manage A/B tests between ensemble configurations",
}

var testsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tests",
	Args:  cobra.NoArgs,
	RunE:  runTestsList,
}

var testsCreateCmd = &cobra.Command{
	Use:   "create -f <file>",
	Short: "Create a test from a YAML definition",
	Long: `Create a test from a YAML file.

Example file:
  id: threshold-test
  name: Raise confidence threshold
  start_date: 2026-01-01T00:00:00Z
  end_date: 2026-02-01T00:00:00Z
  traffic_split: {control: 50, strict: 50}
  variants:
    - id: control
      is_control: true
      config:
        predictors: [{predictor_id: baseline, weight: 1, enabled: true}]
    - id: strict
      config:
        confidence_threshold: 0.5
        predictors: [{predictor_id: baseline, weight: 1, enabled: true}]`,
	Args: cobra.NoArgs,
	RunE: runTestsCreate,
}

var testsShowCmd = &cobra.Command{
	Use:   "show <test-id>",
	Short: "Show a test definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestsShow,
}

var testsAnalyzeCmd = &cobra.Command{
	Use:   "analyze <test-id>",
	Short: "Compare test variants against the control",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestsAnalyze,
}

var testsStopCmd = &cobra.Command{
	Use:   "stop <test-id>",
	Short: "Stop a test",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestsStop,
}

var (
	testsActiveOnly bool
	testFile        string
)

func init() {
	testsListCmd.Flags().BoolVar(&testsActiveOnly, "active", false, "only list running tests")
	testsCreateCmd.Flags().StringVarP(&testFile, "file", "f", "", "test definition (required)")
	_ = testsCreateCmd.MarkFlagRequired("file")

	testsCmd.AddCommand(testsListCmd, testsCreateCmd, testsShowCmd, testsAnalyzeCmd, testsStopCmd)
	rootCmd.AddCommand(testsCmd)
}

func testPath(id string, suffix string) string {
	return "/v1/tests/" + url.PathEscape(id) + suffix
}

func runTestsList(cmd *cobra.Command, args []string) error {
	path := "/v1/tests"
	if testsActiveOnly {
		path += "?active=true"
	}

	var tests []experiment.TestConfig
	if err := NewClient().GetJSON(path, &tests); err != nil {
		return fmt.Errorf("failed to list tests: %w", err)
	}

	if jsonOut {
		return printJSON(tests)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVARIANTS\tSTART\tEND")
	for _, t := range tests {
		ids := make([]string, 0, len(t.Variants))
		for _, v := range t.Variants {
			ids = append(ids, v.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, strings.Join(ids, ","),
			t.StartDate.Format("2006-01-02 15:04"), t.EndDate.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// readTestConfig parses a YAML test definition.
func readTestConfig(path string) (*experiment.TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}

	var cfg experiment.TestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}
	return &cfg, nil
}

func runTestsCreate(cmd *cobra.Command, args []string) error {
	cfg, err := readTestConfig(testFile)
	if err != nil {
		return err
	}

	var created experiment.TestConfig
	if err := NewClient().PostJSON("/v1/tests", cfg, http.StatusCreated, &created); err != nil {
		return fmt.Errorf("failed to create test: %w", err)
	}

	if jsonOut {
		return printJSON(created)
	}
	fmt.Printf("Created test %s (%d variants)\n", created.ID, len(created.Variants))
	return nil
}

func runTestsShow(cmd *cobra.Command, args []string) error {
	var test experiment.TestConfig
	if err := NewClient().GetJSON(testPath(args[0], ""), &test); err != nil {
		return fmt.Errorf("failed to get test: %w", err)
	}

	if jsonOut {
		return printJSON(test)
	}

	data, err := yaml.Marshal(test)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runTestsAnalyze(cmd *cobra.Command, args []string) error {
	var analysis experiment.Analysis
	if err := NewClient().GetJSON(testPath(args[0], "/analysis"), &analysis); err != nil {
		return fmt.Errorf("failed to analyze test: %w", err)
	}

	if jsonOut {
		return printJSON(analysis)
	}

	state := "stopped"
	if analysis.Active {
		state = "active"
	}
	fmt.Printf("Test %s (%s), control %s\n\n", analysis.TestID, state, analysis.ControlID)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tPREDICTIONS\tSAMPLES\tCONVERSION\tCI\tACCURACY")
	for _, v := range analysis.Variants {
		id := v.VariantID
		if v.IsControl {
			id += "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t[%.3f, %.3f]\t%.3f\n", id, v.Predictions, v.SampleSize,
			v.ConversionRate*100, v.ConfidenceInterval.Lower, v.ConfidenceInterval.Upper, v.AverageAccuracy)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(analysis.Comparisons) > 0 {
		fmt.Println()
		for _, c := range analysis.Comparisons {
			mark := ""
			if c.Significant {
				mark = " (significant)"
			}
			fmt.Printf("%s vs control: lift %+.1fpp, z %.2f, p %.4f%s\n", c.VariantID, c.Lift*100, c.ZScore, c.PValue, mark)
		}
	}

	if analysis.Winner != "" {
		fmt.Printf("\nWinner: %s (confidence %.1f%%)\n", analysis.Winner, analysis.Confidence*100)
	}
	for _, r := range analysis.Recommendations {
		fmt.Printf("- %s\n", r)
	}
	return nil
}

func runTestsStop(cmd *cobra.Command, args []string) error {
	var stopped experiment.TestConfig
	if err := NewClient().PostJSON(testPath(args[0], "/stop"), nil, http.StatusOK, &stopped); err != nil {
		return fmt.Errorf("failed to stop test: %w", err)
	}

	if jsonOut {
		return printJSON(stopped)
	}
	fmt.Printf("Stopped test %s\n", stopped.ID)
	return nil
}
