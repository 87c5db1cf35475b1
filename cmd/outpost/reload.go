package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"verity-health/outpost/pkg/cli"
)

var reloadFlags struct {
	address string
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Force a full rule resync",
	Long: `Tell a running node to discard its cached rule version and fetch the
complete current rule set from the control plane.

Cached rules keep serving evaluations while the resync runs.`,
	RunE: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)

	reloadCmd.Flags().StringVar(&reloadFlags.address, "address", "", "node address (default from config)")
}

func runReload(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 60 * time.Second}
	url := fmt.Sprintf("http://%s/v1/sync/reload", nodeAddress(reloadFlags.address))

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return cli.NewCommandError("reload", fmt.Errorf("node unreachable: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Println("✓ Rule resync started")
		return nil
	case http.StatusConflict:
		return cli.NewCommandError("reload", fmt.Errorf("a rule poll is already in flight"))
	default:
		body, _ := io.ReadAll(resp.Body)
		return cli.NewCommandError("reload", fmt.Errorf("node returned %d: %s", resp.StatusCode, body))
	}
}
