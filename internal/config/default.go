package config

// Default configuration values.
const (
	DefaultDataDir = "/var/lib/walletmesh"

	DefaultCacheSize    = 16 << 20
	DefaultMemTableSize = 16 << 20
	DefaultGCInterval   = "10m"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			DataDir: DefaultDataDir,
			Badger: BadgerSection{
				CacheSize:    DefaultCacheSize,
				MemTableSize: DefaultMemTableSize,
				GCInterval:   DefaultGCInterval,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
