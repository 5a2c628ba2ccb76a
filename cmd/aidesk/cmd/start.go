package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brianly1003/aidesk/internal/app"
	"github.com/brianly1003/aidesk/internal/config"
)

var (
	storeDir string
	port     int
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aidesk daemon",
	Long: `Start the aidesk daemon. It watches the host editor's chat store,
reconciles its sessions into the local registry, and serves the registry
over JSON-RPC.

Example:
  aidesk start
  aidesk start --store ~/.aidesk-host/chats
  aidesk start --port 8790`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&storeDir, "store", "", "root of the editor's chat store (default: ~/.aidesk-host/chats)")
	startCmd.Flags().IntVar(&port, "port", 0, "RPC server port (default: 8790)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("store", cfg.Store.Dir).
		Int("port", cfg.Server.Port).
		Msg("starting aidesk")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("aidesk stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
