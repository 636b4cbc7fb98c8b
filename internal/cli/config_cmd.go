package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haskel/quorum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long: `Display the effective configuration: file values (or defaults) with
QUORUM_* environment overrides applied.`,
	RunE: runConfig,
}

var validateOnly bool

func init() {
	configCmd.Flags().BoolVar(&validateOnly, "validate", false, "only validate config, don't print")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		if jsonOut {
			fmt.Printf(`{"valid":false,"error":%q}`+"\n", err.Error())
		} else {
			fmt.Printf("Configuration invalid: %v\n", err)
		}
		return err
	}

	if validateOnly {
		if jsonOut {
			fmt.Println(`{"valid":true}`)
		} else {
			fmt.Printf("Configuration is valid (%d predictors, %s storage)\n",
				enabledPredictors(cfg), cfg.Persistence.Backend)
		}
		return nil
	}

	if jsonOut {
		return printJSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func enabledPredictors(cfg *config.Config) int {
	n := 0
	for _, p := range cfg.Ensemble.Predictors {
		if p.IsEnabled() {
			n++
		}
	}
	return n
}
