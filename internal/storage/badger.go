package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyExists   = errors.New("key already exists")
	ErrClosed      = errors.New("kv engine closed")
)

// BadgerEngine implements KVEngine using Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    KVConfig
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64  // Unix milliseconds
	gcRewrites atomic.Uint64 // Total value log rewrites

	metricsMu  sync.Mutex
	registerer prometheus.Registerer
	collectors []prometheus.Collector

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

var _ KVEngine = (*BadgerEngine)(nil)

// NewBadgerEngine creates a new Badger-based KV engine.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name != "" {
		logger = logger.With("store", cfg.Name)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &badgerLogger{logger: logger}

	bc := cfg.Badger
	if bc.CacheSize > 0 {
		opts.BlockCacheSize = bc.CacheSize
	}
	if bc.MemTableSize > 0 {
		opts.MemTableSize = bc.MemTableSize
	}
	if bc.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = bc.ValueLogFileSize
	}
	if bc.NumMemtables > 0 {
		opts.NumMemtables = bc.NumMemtables
	}
	opts.SyncWrites = bc.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	engine := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.InMemory {
		close(engine.doneCh)
	} else {
		go engine.gcLoop()
	}

	logger.Debug("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"cache_size", bc.CacheSize,
		"gc_interval", bc.GCInterval)

	return engine, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// SetIfAbsent stores a key-value pair unless the key exists.
func (e *BadgerEngine) SetIfAbsent(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrKeyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrKeyExists
	}
	return err
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// GC triggers garbage collection.
//
// Badger uses a value log that needs periodic GC to reclaim space.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.cfg.InMemory {
		return 0, nil
	}

	threshold := e.cfg.Badger.GCThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}

	startTime := time.Now()
	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return rewrites, err
		}
		err := e.db.RunValueLogGC(threshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return rewrites, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(uint64(rewrites))

	e.logger.Debug("gc completed",
		"rewrites", rewrites,
		"elapsed", time.Since(startTime))

	return rewrites, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := e.db.Size()
	return &KVStats{
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
		GCRewrites:   e.gcRewrites.Load(),
	}, nil
}

// Close gracefully shuts down the Badger engine.
// Closing twice returns ErrClosed.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	e.closeOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
	e.unregisterMetrics()

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	e.logger.Debug("badger engine closed")
	return nil
}

// RegisterMetrics exposes the engine's storage sizes to Prometheus.
//
// Gauges are labelled with the engine name and unregistered on Close.
// Returns the engine for method chaining.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) (*BadgerEngine, error) {
	if reg == nil {
		return e, nil
	}

	labels := prometheus.Labels{"store": e.cfg.Name}
	size := func(pick func(s *KVStats) uint64) func() float64 {
		return func() float64 {
			stats, err := e.Stats(context.Background())
			if err != nil {
				return 0
			}
			return float64(pick(stats))
		}
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "walletmesh",
			Subsystem:   "badger",
			Name:        "lsm_size_bytes",
			Help:        "Badger LSM tree size in bytes",
			ConstLabels: labels,
		}, size(func(s *KVStats) uint64 { return s.LSMSize })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "walletmesh",
			Subsystem:   "badger",
			Name:        "value_log_size_bytes",
			Help:        "Badger value log size in bytes",
			ConstLabels: labels,
		}, size(func(s *KVStats) uint64 { return s.ValueLogSize })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "walletmesh",
			Subsystem:   "badger",
			Name:        "gc_rewrites_total",
			Help:        "Total value log rewrites performed by Badger garbage collection",
			ConstLabels: labels,
		}, func() float64 { return float64(e.gcRewrites.Load()) }),
	}

	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return e, fmt.Errorf("badger: register metrics: %w", err)
		}
	}
	e.registerer = reg
	e.collectors = collectors
	return e, nil
}

func (e *BadgerEngine) unregisterMetrics() {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	if e.registerer == nil {
		return
	}
	for _, c := range e.collectors {
		e.registerer.Unregister(c)
	}
	e.registerer = nil
	e.collectors = nil
}

// gcLoop runs periodic garbage collection.
func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	interval, err := time.ParseDuration(e.cfg.Badger.GCInterval)
	if err != nil || interval <= 0 {
		if e.cfg.Badger.GCInterval != "" {
			e.logger.Warn("invalid gc_interval, using default 10m", "error", err)
		}
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil && !errors.Is(err, ErrClosed) {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger's info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
