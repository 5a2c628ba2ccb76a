package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brianly1003/aidesk/internal/rpc/client"
	"github.com/brianly1003/aidesk/internal/rpc/handler/methods"
)

var statusJSON bool

// statusCmd queries a running daemon for its status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running aidesk daemon",
	Long: `Connect to a running aidesk daemon and print its status: version,
uptime, workspace and session counts, and scheduler activity.

Example:
  aidesk status
  aidesk status --port 8790`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&port, "port", 0, "RPC server port (default: 8790)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/rpc", cfg.Server.Host, cfg.Server.Port)
	c, err := client.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", url, err)
	}
	defer c.Close()

	if statusJSON {
		var raw json.RawMessage
		if err := c.Call(ctx, "status/get", nil, &raw); err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	var status methods.StatusGetResult
	if err := c.Call(ctx, "status/get", nil, &status); err != nil {
		return err
	}

	fmt.Printf("aidesk %s\n", status.Version)
	fmt.Printf("  Uptime:     %s\n", (time.Duration(status.UptimeSecs) * time.Second).String())
	fmt.Printf("  Workspaces: %d\n", status.Workspaces)
	fmt.Printf("  Sessions:   %d\n", status.Sessions)
	fmt.Printf("  Fast ticks: %d (last %s)\n", status.Scheduler.FastTicks, formatTime(status.Scheduler.LastFastPass))
	fmt.Printf("  Deep scans: %d (cache hits %d)\n", status.Scheduler.DeepScans, status.Scheduler.CacheHits)
	fmt.Printf("  Snapshots:  last %s\n", formatTime(status.Scheduler.LastSnapshot))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
