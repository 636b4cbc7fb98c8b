package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/cli/tui"
)

var (
	refreshInterval time.Duration
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI dashboard",
	Long: `Launch an interactive terminal user interface for monitoring
predictors, calibration and running A/B tests.

Examples:
  quorum tui                    # Basic launch with default settings
  quorum tui --refresh 500ms    # Faster refresh rate
  quorum tui --host 10.0.0.1    # Connect to remote server`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().DurationVar(&refreshInterval, "refresh", 2*time.Second, "dashboard refresh interval")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	config := tui.Config{
		ServerURL:       GetServerURL(),
		RefreshInterval: refreshInterval,
		User:            user,
		Password:        password,
	}

	return tui.Run(config)
}
