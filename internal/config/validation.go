package config

import (
	"fmt"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateStore(&cfg.Store); err != nil {
		return err
	}
	if err := validateRegistry(&cfg.Registry); err != nil {
		return err
	}
	if err := validateScheduler(&cfg.Scheduler); err != nil {
		return err
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	return nil
}

func validateStore(cfg *StoreConfig) error {
	if cfg.Dir == "" {
		return fmt.Errorf("store.dir cannot be empty")
	}
	if cfg.QueryTimeoutMS < 100 {
		return fmt.Errorf("store.query_timeout_ms must be at least 100, got %d", cfg.QueryTimeoutMS)
	}
	return nil
}

func validateRegistry(cfg *RegistryConfig) error {
	if cfg.SnapshotPath == "" {
		return fmt.Errorf("registry.snapshot_path cannot be empty")
	}
	if cfg.StaleSessionHours < 1 {
		return fmt.Errorf("registry.stale_session_hours must be at least 1, got %d", cfg.StaleSessionHours)
	}
	if cfg.StaleWorkspaceDays < 1 {
		return fmt.Errorf("registry.stale_workspace_days must be at least 1, got %d", cfg.StaleWorkspaceDays)
	}
	if cfg.DefaultPersona == "" {
		return fmt.Errorf("registry.default_persona cannot be empty")
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) error {
	if cfg.FastIntervalSecs < 1 {
		return fmt.Errorf("scheduler.fast_interval_secs must be at least 1, got %d", cfg.FastIntervalSecs)
	}
	if cfg.RecentIntervalSecs < cfg.FastIntervalSecs {
		return fmt.Errorf("scheduler.recent_interval_secs must be >= fast_interval_secs")
	}
	if cfg.BackgroundIntervalSecs < cfg.RecentIntervalSecs {
		return fmt.Errorf("scheduler.background_interval_secs must be >= recent_interval_secs")
	}
	if cfg.RecentWindow < 1 {
		return fmt.Errorf("scheduler.recent_window must be at least 1, got %d", cfg.RecentWindow)
	}
	if cfg.BackgroundBatch < 1 {
		return fmt.Errorf("scheduler.background_batch must be at least 1, got %d", cfg.BackgroundBatch)
	}
	return nil
}
