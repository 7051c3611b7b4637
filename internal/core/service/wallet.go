package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/walletmesh-go/internal/storage/catalog"
	"github.com/yndnr/walletmesh-go/internal/storage/handle"
	"github.com/yndnr/walletmesh-go/internal/storage/registry"
	"github.com/yndnr/walletmesh-go/internal/telemetry/logger"
	"github.com/yndnr/walletmesh-go/internal/telemetry/metric"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// Config holds WalletService dependencies.
type Config struct {
	Registry *registry.Registry // Required
	Catalog  *catalog.Catalog   // Required
	Handles  *handle.Table      // Optional, a fresh table by default
	Metrics  *metric.Registry   // Optional, unregistered metrics by default
	Logger   *slog.Logger       // Optional, slog.Default by default
	Clock    func() time.Time   // Optional, time.Now by default
}

// WalletService manages wallet lifecycles and handle-scoped record access.
type WalletService struct {
	types   *registry.Registry
	catalog *catalog.Catalog
	handles *handle.Table
	metrics *metric.Registry
	logger  *slog.Logger
	clock   func() time.Time

	// exclusive holds wallets opened through a single-session backend.
	mu        sync.Mutex
	exclusive map[string]struct{}
}

var _ metric.Source = (*WalletService)(nil)

// NewWalletService creates a WalletService.
func NewWalletService(cfg Config) (*WalletService, error) {
	if cfg.Registry == nil || cfg.Catalog == nil {
		return nil, domain.ErrInternal.WithDetails("wallet service requires a registry and a catalog")
	}

	s := &WalletService{
		types:     cfg.Registry,
		catalog:   cfg.Catalog,
		handles:   cfg.Handles,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		exclusive: make(map[string]struct{}),
	}
	if s.handles == nil {
		s.handles = handle.NewTable()
	}
	if s.metrics == nil {
		m, err := metric.NewRegistry(nil)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

func (s *WalletService) log(ctx context.Context) *slog.Logger {
	return logger.L(ctx, s.logger)
}

// ============================================================================
// Type Registration
// ============================================================================

// RegisterType registers a storage type under name.
//
// impl is a backend.Backend or a *backend.Funcs callback table. A name can
// be registered once; override never replaces an existing registration.
func (s *WalletService) RegisterType(name string, impl any, override bool) error {
	start := time.Now()
	err := s.types.Register(name, impl, override)
	s.metrics.Observe("register_type", start, err)
	if err != nil {
		s.logger.Warn("type registration refused", "type", name, "error", err)
		return err
	}
	s.logger.Info("type registered", "type", name)
	return nil
}

// Types returns the registered type names in sorted order.
func (s *WalletService) Types() []string {
	return s.types.Types()
}

// ============================================================================
// Queries
// ============================================================================

// ListWallets returns the descriptors of all existing wallets ordered by name.
func (s *WalletService) ListWallets(ctx context.Context) ([]*domain.Descriptor, error) {
	return s.catalog.List(ctx)
}

// Wallet returns the descriptor of an existing wallet.
// Returns domain.ErrIO if the wallet does not exist.
func (s *WalletService) Wallet(ctx context.Context, name string) (*domain.Descriptor, error) {
	if name == "" {
		return nil, domain.InvalidParam(2)
	}
	return s.catalog.Get(ctx, name)
}

// OpenHandles returns the number of live wallet handles.
func (s *WalletService) OpenHandles() int {
	return s.handles.Len()
}

// Handles returns the live wallet handles in ascending order.
func (s *WalletService) Handles() []domain.Handle {
	return s.handles.Handles()
}

// RegisteredTypes returns the number of registered types.
func (s *WalletService) RegisteredTypes() int {
	return s.types.Len()
}

// ReservedNames returns the number of wallet names held by an in-flight
// create or delete.
func (s *WalletService) ReservedNames() int {
	return s.catalog.Reserved()
}

// Close closes every open handle, returning the first close error.
func (s *WalletService) Close(ctx context.Context) error {
	return s.handles.Drain(ctx, func(h domain.Handle, e *handle.Entry) {
		s.retired(ctx, h, e)
	})
}

func (s *WalletService) retired(ctx context.Context, h domain.Handle, e *handle.Entry) {
	if e.Exclusive {
		s.releaseExclusive(e.Wallet)
	}
	s.metrics.HandlesRetired.Inc()
	s.log(logger.WithWallet(ctx, e.Wallet)).Info("wallet closed", "handle", h)
}

func (s *WalletService) claimExclusive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.exclusive[name]; held {
		return false
	}
	s.exclusive[name] = struct{}{}
	return true
}

func (s *WalletService) releaseExclusive(name string) {
	s.mu.Lock()
	delete(s.exclusive, name)
	s.mu.Unlock()
}
