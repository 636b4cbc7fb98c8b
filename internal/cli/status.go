package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Get current server status",
	Long:  `Query the running quorum server for pending predictions, registered models, active tests and resource usage.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient()

	var status server.StatusResponse
	if err := client.GetJSON("/status", &status); err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOut {
		return printJSON(status)
	}

	fmt.Println("=== Quorum Status ===")
	fmt.Printf("\nVersion:             %s\n", status.Version)
	fmt.Printf("Models:              %d\n", status.Models)
	fmt.Printf("Pending predictions: %d\n", status.Pending)
	fmt.Printf("Active tests:        %d\n", status.ActiveTests)

	if res := status.Resources; res != nil {
		fmt.Printf("\nHost:\n")
		fmt.Printf("  CPU:    %.1f%% (%d cores)\n", res.Host.CPUPercent, res.Host.CPUCores)
		fmt.Printf("  Memory: %.1f%% (%.1f / %.1f GB)\n",
			res.Host.MemoryPercent,
			float64(res.Host.MemoryUsed)/1024/1024/1024,
			float64(res.Host.MemoryTotal)/1024/1024/1024)

		fmt.Printf("\nProcess:\n")
		fmt.Printf("  PID:        %d\n", res.Process.PID)
		fmt.Printf("  CPU:        %.1f%%\n", res.Process.CPUPercent)
		fmt.Printf("  Memory:     %.1f%% (%.1f MB RSS)\n", res.Process.MemoryPercent, float64(res.Process.RSSBytes)/1024/1024)
		fmt.Printf("  Goroutines: %d\n", res.Process.Goroutines)

		for _, d := range res.Disks {
			fmt.Printf("\nStorage %s: %.1f%% used (%.1f GB total)\n", d.Path, d.UsagePercent, float64(d.TotalBytes)/1024/1024/1024)
		}
	}

	if s := status.Scheduler; s != nil {
		fmt.Printf("\nScheduler:\n")
		fmt.Printf("  Running:  %t\n", s.Running)
		fmt.Printf("  Interval: %s\n", s.Interval)
		fmt.Printf("  Ticks:    %d\n", s.TickCount)
		if s.LastError != "" {
			fmt.Printf("  Last error: %s\n", s.LastError)
		}
	}

	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
