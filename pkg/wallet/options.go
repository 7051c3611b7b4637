package wallet

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/walletmesh-go/internal/config"
	"github.com/yndnr/walletmesh-go/internal/infra/confloader"
	"github.com/yndnr/walletmesh-go/internal/storage"
	"github.com/yndnr/walletmesh-go/internal/telemetry/logger"
)

// Options configures a Context.
type Options struct {
	// DataDir holds the catalog and the built-in backends' files. Required.
	DataDir string

	// Badger tunes the catalog and default-backend engines.
	// Zero fields take the engine defaults.
	Badger storage.BadgerConfig

	// KDF overrides the default backend's key derivation parameters.
	KDF *KDFParams

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Registerer receives the subsystem metrics. Nil disables registration.
	Registerer prometheus.Registerer

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	def := storage.DefaultBadgerConfig()
	if o.Badger.GCInterval == "" {
		o.Badger.GCInterval = def.GCInterval
	}
	if o.Badger.GCThreshold == 0 {
		o.Badger.GCThreshold = def.GCThreshold
	}
	if o.Badger.CacheSize == 0 {
		o.Badger.CacheSize = def.CacheSize
	}
	if o.Badger.MemTableSize == 0 {
		o.Badger.MemTableSize = def.MemTableSize
	}
	if o.Badger.ValueLogFileSize == 0 {
		o.Badger.ValueLogFileSize = def.ValueLogFileSize
	}
	if o.Badger.NumMemtables == 0 {
		o.Badger.NumMemtables = def.NumMemtables
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// OptionsFromConfig turns a loaded configuration into Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		DataDir: cfg.Storage.DataDir,
		Badger: storage.BadgerConfig{
			GCInterval:   cfg.Storage.Badger.GCInterval,
			CacheSize:    cfg.Storage.Badger.CacheSize,
			MemTableSize: cfg.Storage.Badger.MemTableSize,
			SyncWrites:   cfg.Storage.Badger.SyncWrites,
		},
		Logger: logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		}),
	}
	if cfg.Metrics.Enabled {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	return opts
}

// LoadOptions reads configuration from path (optional) and WALLETMESH_
// environment variables on top of the defaults, verifies it and returns
// the resulting Options.
func LoadOptions(path string) (Options, error) {
	cfg := config.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return Options{}, fmt.Errorf("wallet: load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return Options{}, fmt.Errorf("wallet: invalid config: %w", err)
	}
	return OptionsFromConfig(cfg), nil
}
