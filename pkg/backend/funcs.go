package backend

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// Callback signatures of the plugin table. Configuration and credentials
// cross the boundary as raw JSON documents; sessions are identified by a
// plugin-issued handle.
type (
	CreateFunc        func(ctx context.Context, name, config, credentials string) error
	OpenFunc          func(ctx context.Context, name, config, runtimeConfig, credentials string) (int32, error)
	CloseFunc         func(ctx context.Context, handle int32) error
	DeleteFunc        func(ctx context.Context, name, config, credentials string) error
	SetFunc           func(ctx context.Context, handle int32, key string, value []byte) error
	GetFunc           func(ctx context.Context, handle int32, key string) (*domain.Value, error)
	GetIfFreshFunc    func(ctx context.Context, handle int32, key string, opts ReadOptions) (*domain.Value, error)
	ListFunc          func(ctx context.Context, handle int32, prefix string) (RecordSet, error)
	ReleaseValueFunc  func(handle int32, v *domain.Value)
	ReleaseSearchFunc func(handle int32, rs RecordSet)
)

// RecordSet is a search result produced by a plugin's List callback.
// Next returns io.EOF when exhausted.
type RecordSet interface {
	Next(ctx context.Context) (*domain.Record, error)
}

// Funcs is the callback table a plugin registers.
//
// Entry points are validated in declaration order; the first missing one
// is reported as domain.InvalidParam at its argument position, starting at
// 3 for Create.
type Funcs struct {
	Create        CreateFunc
	Open          OpenFunc
	Close         CloseFunc
	Delete        DeleteFunc
	Set           SetFunc
	Get           GetFunc
	GetIfFresh    GetIfFreshFunc
	List          ListFunc
	ReleaseValue  ReleaseValueFunc
	ReleaseSearch ReleaseSearchFunc

	// SingleSession refuses a second concurrent session over one wallet.
	SingleSession bool

	// DeleteWhileOpen permits deleting a wallet that has open sessions.
	DeleteWhileOpen bool
}

// Validator is implemented by capability implementations that can report
// missing entry points.
type Validator interface {
	Validate() error
}

// FirstEntryPosition is the argument position of the Create entry point in
// a registration call.
const FirstEntryPosition = 3

// Validate implements Validator.
func (f *Funcs) Validate() error {
	present := []bool{
		f.Create != nil,
		f.Open != nil,
		f.Close != nil,
		f.Delete != nil,
		f.Set != nil,
		f.Get != nil,
		f.GetIfFresh != nil,
		f.List != nil,
		f.ReleaseValue != nil,
		f.ReleaseSearch != nil,
	}
	for i, ok := range present {
		if !ok {
			return domain.InvalidParam(FirstEntryPosition + i)
		}
	}
	return nil
}

// Backend adapts the table to the Backend contract.
// The table must have passed Validate.
func (f *Funcs) Backend() Backend {
	return &funcsBackend{f: f}
}

type funcsBackend struct {
	f *Funcs
}

var (
	_ Backend = (*funcsBackend)(nil)
	_ Policy  = (*funcsBackend)(nil)
)

func (b *funcsBackend) Create(ctx context.Context, name string, cfg domain.Config, creds domain.Credentials) error {
	return b.f.Create(ctx, name, cfg.Raw, creds.Raw)
}

func (b *funcsBackend) Open(ctx context.Context, name string, cfg, runtime domain.Config, creds domain.Credentials) (Session, error) {
	h, err := b.f.Open(ctx, name, cfg.Raw, runtime.Raw, creds.Raw)
	if err != nil {
		return nil, err
	}
	return &funcsSession{f: b.f, handle: h}, nil
}

func (b *funcsBackend) Delete(ctx context.Context, name string, cfg domain.Config, creds domain.Credentials) error {
	return b.f.Delete(ctx, name, cfg.Raw, creds.Raw)
}

func (b *funcsBackend) AllowConcurrentSessions() bool { return !b.f.SingleSession }
func (b *funcsBackend) AllowDeleteWhileOpen() bool    { return b.f.DeleteWhileOpen }

type funcsSession struct {
	f      *Funcs
	handle int32
	closed atomic.Bool
}

func (s *funcsSession) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return domain.ErrInvalidHandle
	}
	return s.f.Set(ctx, s.handle, key, value)
}

func (s *funcsSession) Get(ctx context.Context, key string, opts ReadOptions) (*domain.Value, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	if opts.Freshness > 0 {
		return s.f.GetIfFresh(ctx, s.handle, key, opts)
	}
	return s.f.Get(ctx, s.handle, key)
}

func (s *funcsSession) List(ctx context.Context, prefix string) (Iterator, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	rs, err := s.f.List(ctx, s.handle, prefix)
	if err != nil {
		return nil, err
	}
	return &funcsIterator{f: s.f, handle: s.handle, rs: rs}, nil
}

func (s *funcsSession) ReleaseValue(v *domain.Value) {
	if v == nil {
		return
	}
	s.f.ReleaseValue(s.handle, v)
}

func (s *funcsSession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return domain.ErrInvalidHandle
	}
	if err := s.f.Close(ctx, s.handle); err != nil {
		s.closed.Store(false)
		return err
	}
	return nil
}

type funcsIterator struct {
	f      *Funcs
	handle int32
	rs     RecordSet
	once   sync.Once
	done   bool
}

func (it *funcsIterator) Next(ctx context.Context) (*domain.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	rec, err := it.rs.Next(ctx)
	if err == io.EOF {
		it.done = true
	}
	return rec, err
}

func (it *funcsIterator) Close() error {
	it.once.Do(func() {
		it.done = true
		it.f.ReleaseSearch(it.handle, it.rs)
	})
	return nil
}
