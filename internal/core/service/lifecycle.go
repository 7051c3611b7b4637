package service

import (
	"context"
	"time"

	"github.com/yndnr/walletmesh-go/internal/storage/handle"
	"github.com/yndnr/walletmesh-go/internal/telemetry/logger"
	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// ============================================================================
// Wallet Create Operation
// ============================================================================

// CreateWalletRequest contains parameters for wallet creation.
type CreateWalletRequest struct {
	PoolName    string // Required
	Name        string // Required, unique across pools
	Type        string // Optional, defaults to "default"
	Config      string // Optional JSON configuration document
	Credentials string // Optional JSON credentials document
}

// CreateWallet creates a wallet and its backend storage.
//
// The name is reserved before the backend is called, so concurrent
// creators of one name see domain.ErrWalletAlreadyExists. If the backend
// fails the reservation is dropped and nothing is persisted.
func (s *WalletService) CreateWallet(ctx context.Context, req *CreateWalletRequest) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("create", start, err) }()

	// 1. Validate arguments
	if req.PoolName == "" {
		return domain.InvalidParam(2).WithDetails("pool name is required")
	}
	if req.Name == "" {
		return domain.InvalidParam(3).WithDetails("wallet name is required")
	}
	cfg, err := domain.ParseConfig(req.Config)
	if err != nil {
		return err
	}
	creds, err := domain.ParseCredentials(req.Credentials)
	if err != nil {
		return err
	}

	// 2. Resolve the storage type
	walletType := req.Type
	if walletType == "" {
		walletType = domain.DefaultType
	}
	impl, err := s.types.Lookup(walletType)
	if err != nil {
		return err
	}

	d, err := domain.NewDescriptor(req.PoolName, req.Name, walletType, req.Config, s.clock())
	if err != nil {
		return err
	}

	ctx = logger.WithWallet(ctx, req.Name)
	log := s.log(ctx)

	// 3. Reserve, create, commit
	if err := s.catalog.Reserve(ctx, req.Name); err != nil {
		return err
	}
	if err := impl.Create(ctx, req.Name, cfg, creds); err != nil {
		s.catalog.Release(req.Name)
		log.Warn("backend create failed", "type", walletType, "error", err)
		return err
	}
	if err := s.catalog.Commit(ctx, d); err != nil {
		if rbErr := impl.Delete(ctx, req.Name, cfg, creds); rbErr != nil {
			log.Error("rollback of backend storage failed", "type", walletType, "error", rbErr)
		}
		return err
	}

	s.metrics.WalletsCreated.Inc()
	log.Info("wallet created", "pool", req.PoolName, "type", walletType, "id", d.ID)
	return nil
}

// ============================================================================
// Wallet Delete Operation
// ============================================================================

// DeleteWallet destroys a wallet's backend storage and frees its name.
//
// Returns domain.ErrIO if the wallet does not exist, is being created,
// deleted or opened concurrently, or has open handles on a backend that
// forbids deleting open wallets.
func (s *WalletService) DeleteWallet(ctx context.Context, name, credentials string) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("delete", start, err) }()

	if name == "" {
		return domain.InvalidParam(2).WithDetails("wallet name is required")
	}
	creds, err := domain.ParseCredentials(credentials)
	if err != nil {
		return err
	}

	ctx = logger.WithWallet(ctx, name)
	d, err := s.catalog.Acquire(ctx, name)
	if err != nil {
		return err
	}

	impl, err := s.types.Lookup(d.Type)
	if err != nil {
		s.catalog.Release(name)
		return err
	}
	if _, deleteWhileOpen := backend.PolicyOf(impl); !deleteWhileOpen {
		if n := s.handles.OpenCount(name); n > 0 {
			s.catalog.Release(name)
			return domain.ErrIO.WithDetailsf("wallet %q has %d open handles", name, n)
		}
	}
	cfg, err := d.ParsedConfig()
	if err != nil {
		s.catalog.Release(name)
		return err
	}

	if err := impl.Delete(ctx, name, cfg, creds); err != nil {
		s.catalog.Release(name)
		s.log(ctx).Warn("backend delete failed", "type", d.Type, "error", err)
		return err
	}
	if err := s.catalog.Remove(ctx, name); err != nil {
		s.log(ctx).Error("descriptor left behind after backend storage was deleted", "type", d.Type, "error", err)
		return err
	}

	s.metrics.WalletsDeleted.Inc()
	s.log(ctx).Info("wallet deleted", "type", d.Type)
	return nil
}

// ============================================================================
// Wallet Open/Close Operations
// ============================================================================

// OpenWalletRequest contains parameters for opening a wallet.
type OpenWalletRequest struct {
	Name          string // Required
	RuntimeConfig string // Optional JSON configuration override
	Credentials   string // Optional JSON credentials document
}

// OpenWallet opens a session over an existing wallet and returns its handle.
//
// The wallet stays pinned in the catalog until the handle is allocated,
// which keeps a concurrent delete from removing it mid-open.
func (s *WalletService) OpenWallet(ctx context.Context, req *OpenWalletRequest) (h domain.Handle, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("open", start, err) }()

	if req.Name == "" {
		return 0, domain.InvalidParam(2).WithDetails("wallet name is required")
	}
	runtime, err := domain.ParseConfig(req.RuntimeConfig)
	if err != nil {
		return 0, err
	}
	creds, err := domain.ParseCredentials(req.Credentials)
	if err != nil {
		return 0, err
	}

	ctx = logger.WithWallet(ctx, req.Name)
	d, err := s.catalog.Pin(ctx, req.Name)
	if err != nil {
		return 0, err
	}
	defer s.catalog.Unpin(req.Name)

	impl, err := s.types.Lookup(d.Type)
	if err != nil {
		return 0, err
	}
	created, err := d.ParsedConfig()
	if err != nil {
		return 0, err
	}

	concurrent, _ := backend.PolicyOf(impl)
	if !concurrent && !s.claimExclusive(req.Name) {
		return 0, domain.ErrIO.WithDetailsf("wallet %q is already open", req.Name)
	}

	sess, err := impl.Open(ctx, req.Name, created, runtime, creds)
	if err != nil {
		if !concurrent {
			s.releaseExclusive(req.Name)
		}
		s.log(ctx).Warn("backend open failed", "type", d.Type, "error", err)
		return 0, err
	}

	h, err = s.handles.Allocate(&handle.Entry{
		Wallet:    req.Name,
		Type:      d.Type,
		Session:   sess,
		Freshness: domain.EffectiveFreshness(created, runtime),
		OpenedAt:  s.clock(),
		Exclusive: !concurrent,
	})
	if err != nil {
		if closeErr := sess.Close(ctx); closeErr != nil {
			s.log(ctx).Error("close of unallocated session failed", "error", closeErr)
		}
		if !concurrent {
			s.releaseExclusive(req.Name)
		}
		return 0, err
	}

	s.metrics.HandlesAllocated.Inc()
	s.log(ctx).Info("wallet opened", "handle", h, "type", d.Type)
	return h, nil
}

// CloseWallet closes the session behind h and retires the handle.
// Returns domain.ErrInvalidHandle if h is not open.
func (s *WalletService) CloseWallet(ctx context.Context, h domain.Handle) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("close", start, err) }()

	e, err := s.handles.Retire(ctx, h)
	if err != nil {
		return err
	}
	s.retired(ctx, h, e)
	return nil
}
