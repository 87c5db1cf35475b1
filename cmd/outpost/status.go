package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"verity-health/outpost/pkg/cli"
	"verity-health/outpost/pkg/config"
	outpostsync "verity-health/outpost/pkg/sync"
)

var statusFlags struct {
	address string
	output  string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node sync status",
	Long: `Query a running node's local API and print its aggregate status:
connectivity, active rule version, staleness and outbound queue depth.

Examples:
  # Text summary
  outpost status

  # Machine-readable output
  outpost status --output json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.address, "address", "", "node address (default from config)")
	statusCmd.Flags().StringVarP(&statusFlags.output, "output", "o", "text", "output format (text, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := fetchStatus()
	if err != nil {
		return cli.NewCommandError("status", err)
	}

	if cli.OutputFormat(statusFlags.output) == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, status)
	}

	printStatus(status)
	return nil
}

func fetchStatus() (*outpostsync.Status, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/v1/status", nodeAddress(statusFlags.address)))
	if err != nil {
		return nil, fmt.Errorf("node unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node returned %d: %s", resp.StatusCode, body)
	}

	var status outpostsync.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("malformed status response: %w", err)
	}
	return &status, nil
}

func printStatus(status *outpostsync.Status) {
	fmt.Printf("Connection:     %s\n", status.Connection)
	if status.RuleVersion != "" {
		fmt.Printf("Rule version:   %s\n", status.RuleVersion)
	} else {
		fmt.Println("Rule version:   (none applied)")
	}
	if status.LastSyncTime != nil {
		fmt.Printf("Last sync:      %s (%.1fh ago)\n",
			status.LastSyncTime.Format(time.RFC3339), status.HoursSinceLastSync)
	} else {
		fmt.Println("Last sync:      never")
	}
	fmt.Printf("Staleness:      %s\n", status.Staleness)
	fmt.Printf("Queue depth:    %d\n", status.QueueDepth)
	if status.Urgency.Level != "" {
		fmt.Printf("Urgency:        %s\n", status.Urgency.Level)
		if status.Urgency.Message != "" {
			fmt.Printf("                %s\n", status.Urgency.Message)
		}
	}
}

// nodeAddress resolves the API address from the flag, the config file,
// or the built-in default, in that order.
func nodeAddress(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg, err := config.LoadConfig(cfgFile); err == nil {
		return cfg.Server.ListenAddress
	}
	return config.DefaultListenAddress
}
