package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brianly1003/aidesk/internal/config"
)

// defaultConfigTemplate is written by `aidesk config init`. Keys mirror the
// defaults applied when no config file is present.
const defaultConfigTemplate = `# aidesk configuration

server:
  host: 127.0.0.1
  port: 8790

store:
  # Root of the host editor's chat store. Empty means ~/.aidesk-host/chats.
  dir: ""
  query_timeout_ms: 5000
  watch_enabled: true

registry:
  # Empty paths resolve under ~/.aidesk/state/.
  snapshot_path: ""
  query_file_path: ""
  stale_session_hours: 24
  stale_workspace_days: 7
  default_persona: general

scheduler:
  fast_interval_secs: 3
  recent_interval_secs: 20
  background_interval_secs: 180
  recent_window: 10
  background_batch: 25
  snapshot_interval_secs: 120

logging:
  level: info
  format: console
`

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage aidesk configuration.

Without subcommands, shows the current effective configuration.

Examples:
  aidesk config              # Show current config
  aidesk config init         # Create config file with defaults
  aidesk config path         # Show config file locations`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		printConfig(cfg)
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings.

By default, creates ~/.aidesk/config.yaml.
Use --local to create ./config.yaml in the current directory.`,
	RunE: runConfigInit,
}

// configPathCmd shows config file locations.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file locations",
	Run:   runConfigPath,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.aidesk/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
}

func printConfig(cfg *config.Config) {
	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("Store Dir:        %s\n", cfg.Store.Dir)
	fmt.Printf("Watch Enabled:    %t\n", cfg.Store.WatchEnabled)
	fmt.Printf("Host:             %s\n", cfg.Server.Host)
	fmt.Printf("Port:             %d\n", cfg.Server.Port)
	fmt.Printf("Snapshot Path:    %s\n", cfg.Registry.SnapshotPath)
	fmt.Printf("Query File Path:  %s\n", cfg.Registry.QueryFilePath)
	fmt.Printf("Default Persona:  %s\n", cfg.Registry.DefaultPersona)
	fmt.Printf("Fast Interval:    %ds\n", cfg.Scheduler.FastIntervalSecs)
	fmt.Printf("Recent Interval:  %ds\n", cfg.Scheduler.RecentIntervalSecs)
	fmt.Printf("Bg Interval:      %ds\n", cfg.Scheduler.BackgroundIntervalSecs)
	fmt.Printf("Log Level:        %s\n", cfg.Logging.Level)
	fmt.Printf("Log Format:       %s\n", cfg.Logging.Format)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var configPath string

	if configInitLocal {
		configPath = "config.yaml"
	} else {
		configDir, err := config.GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Edit this file to customize aidesk behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting config dir: %v\n", err)
		os.Exit(1)
	}

	locations := []string{
		"./config.yaml",
		filepath.Join(configDir, "config.yaml"),
		"/etc/aidesk/config.yaml",
	}

	fmt.Println("Config search paths (in order):")
	for i, loc := range locations {
		exists := "not found"
		if _, err := os.Stat(loc); err == nil {
			exists = "exists"
		}
		fmt.Printf("  %d. %s (%s)\n", i+1, loc, exists)
	}

	fmt.Printf("\nConfig directory: %s\n", configDir)
}
