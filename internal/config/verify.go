package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/walletmesh-go/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.Badger.CacheSize < 0 {
		return errors.New("storage.badger.cache_size must not be negative")
	}
	if cfg.Badger.MemTableSize < 0 {
		return errors.New("storage.badger.mem_table_size must not be negative")
	}
	if cfg.Badger.GCInterval != "" {
		d, err := time.ParseDuration(cfg.Badger.GCInterval)
		if err != nil {
			return fmt.Errorf("storage.badger.gc_interval: %w", err)
		}
		if d <= 0 {
			return errors.New("storage.badger.gc_interval must be positive")
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if cfg.Level != "" && !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
		return nil
	}
	return fmt.Errorf("log.format %q is not json or text", cfg.Format)
}
