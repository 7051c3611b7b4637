package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/walletmesh-go/internal/core/service"
	"github.com/yndnr/walletmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/walletmesh-go/internal/storage"
	"github.com/yndnr/walletmesh-go/internal/storage/catalog"
	"github.com/yndnr/walletmesh-go/internal/storage/native"
	"github.com/yndnr/walletmesh-go/internal/storage/registry"
	"github.com/yndnr/walletmesh-go/internal/storage/sqlite"
	"github.com/yndnr/walletmesh-go/internal/telemetry/metric"
)

// Directory layout under Options.DataDir.
const (
	catalogDir = "catalog"
	nativeDir  = "wallets"
	sqliteDir  = "sqlite"
)

// Request types re-exported for callers outside the module.
type (
	CreateWalletRequest = service.CreateWalletRequest
	OpenWalletRequest   = service.OpenWalletRequest
)

// KDFParams are the key derivation parameters of the default backend.
type KDFParams = native.KDFParams

// Context is a process-scoped wallet subsystem instance.
type Context struct {
	*service.WalletService

	kv     *storage.BadgerEngine
	native *native.Backend
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a Context storing its catalog and built-in wallets under
// opts.DataDir.
func New(opts Options) (*Context, error) {
	if opts.DataDir == "" {
		return nil, errors.New("wallet: data dir is required")
	}
	opts = opts.withDefaults()

	if err := os.MkdirAll(opts.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("wallet: create data dir: %w", err)
	}

	kv, err := storage.NewBadgerEngine(storage.KVConfig{
		Dir:    filepath.Join(opts.DataDir, catalogDir),
		Name:   catalogDir,
		Badger: opts.Badger,
	}, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("wallet: open catalog: %w", err)
	}

	wc, err := build(opts, kv)
	if err != nil {
		kv.Close()
		return nil, err
	}

	opts.Logger.Info("wallet context ready",
		"data_dir", opts.DataDir,
		"types", wc.Types(),
		"build", buildinfo.Get(),
	)
	return wc, nil
}

func build(opts Options, kv *storage.BadgerEngine) (*Context, error) {
	if opts.Registerer != nil {
		if _, err := kv.RegisterMetrics(opts.Registerer); err != nil {
			return nil, fmt.Errorf("wallet: register catalog metrics: %w", err)
		}
	}

	metrics, err := metric.NewRegistry(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("wallet: register metrics: %w", err)
	}

	svc, err := service.NewWalletService(service.Config{
		Registry: registry.New(),
		Catalog:  catalog.New(kv, opts.Logger),
		Metrics:  metrics,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	nativeOpts := []native.Option{
		native.WithBadgerConfig(opts.Badger),
		native.WithLogger(opts.Logger),
		native.WithClock(opts.Clock),
		native.WithMetrics(opts.Registerer),
	}
	if opts.KDF != nil {
		nativeOpts = append(nativeOpts, native.WithKDFParams(*opts.KDF))
	}
	nb := native.New(filepath.Join(opts.DataDir, nativeDir), nativeOpts...)

	sb := sqlite.New(filepath.Join(opts.DataDir, sqliteDir),
		sqlite.WithLogger(opts.Logger),
		sqlite.WithClock(opts.Clock),
	)

	if err := svc.RegisterType(native.TypeName, nb, false); err != nil {
		return nil, err
	}
	if err := svc.RegisterType(sqlite.TypeName, sb, false); err != nil {
		return nil, err
	}

	if opts.Registerer != nil {
		if err := opts.Registerer.Register(metric.NewCollector(svc)); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("wallet: register collector: %w", err)
			}
			opts.Logger.Warn("wallet gauges already registered by another context")
		}
	}

	return &Context{
		WalletService: svc,
		kv:            kv,
		native:        nb,
		logger:        opts.Logger,
	}, nil
}

// Close closes every open handle and releases the Context's storage.
// It is safe to call more than once.
func (c *Context) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	start := time.Now()
	errs := []error{c.WalletService.Close(ctx)}
	errs = append(errs, c.native.Close())
	errs = append(errs, c.kv.Close())

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("wallet context closed with errors", "error", err)
	} else {
		c.logger.Info("wallet context closed", "duration", time.Since(start))
	}
	return err
}
