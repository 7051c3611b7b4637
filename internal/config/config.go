package config

// Config is the root walletmesh configuration.
type Config struct {
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`
	Metrics MetricsSection `koanf:"metrics"`
}

// StorageSection configures where and how wallets are stored.
type StorageSection struct {
	// DataDir holds the catalog and the built-in backends' wallet files.
	DataDir string        `koanf:"data_dir"`
	Badger  BadgerSection `koanf:"badger"`
}

// BadgerSection tunes the Badger engines behind the catalog and the
// native backend.
type BadgerSection struct {
	CacheSize    int64  `koanf:"cache_size"`
	MemTableSize int64  `koanf:"mem_table_size"`
	SyncWrites   bool   `koanf:"sync_writes"`
	GCInterval   string `koanf:"gc_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsSection configures Prometheus metrics.
type MetricsSection struct {
	Enabled bool `koanf:"enabled"`
}
