package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile  string
	host     string
	port     int
	jsonOut  bool
	verbose  bool
	user     string
	password string

	// Version is set from main.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Ensemble prediction service with model selection and A/B tests",
	Long: `Quorum combines the outputs of several predictors into one prediction,
scores how far that prediction can be trusted, learns which predictors work
best in which context and runs A/B experiments between ensemble configurations.`,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "server host")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 8080, "server port")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "auth username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "auth password")
}

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	Version = v
	rootCmd.Version = v
}

// GetServerURL returns the server URL based on flags
func GetServerURL() string {
	return fmt.Sprintf("http://%s:%d", host, port)
}

// IsJSON returns whether JSON output is enabled
func IsJSON() bool {
	return jsonOut
}

// IsVerbose returns whether verbose output is enabled
func IsVerbose() bool {
	return verbose
}

// GetAuth returns auth credentials
func GetAuth() (string, string) {
	return user, password
}
