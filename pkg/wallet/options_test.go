package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/walletmesh-go/internal/config"
)

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walletmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  data_dir: `+dir+`
  badger:
    cache_size: 1048576
log:
  level: warn
`), 0o600))
	t.Setenv("WALLETMESH_STORAGE__BADGER__SYNC_WRITES", "true")

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, dir, opts.DataDir)
	assert.EqualValues(t, 1<<20, opts.Badger.CacheSize)
	assert.EqualValues(t, config.DefaultMemTableSize, opts.Badger.MemTableSize)
	assert.True(t, opts.Badger.SyncWrites)
	assert.NotNil(t, opts.Logger)
	assert.Nil(t, opts.Registerer)
}

func TestLoadOptions_Invalid(t *testing.T) {
	t.Setenv("WALLETMESH_LOG__LEVEL", "loud")
	_, err := LoadOptions("")
	assert.ErrorContains(t, err, "log.level")

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptionsFromConfig_Metrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, prometheus.DefaultRegisterer, opts.Registerer)
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{DataDir: "x"}.withDefaults()
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Clock)
	assert.Equal(t, "10m", opts.Badger.GCInterval)
	assert.Positive(t, opts.Badger.MemTableSize)
	assert.Positive(t, opts.Badger.NumMemtables)
}
