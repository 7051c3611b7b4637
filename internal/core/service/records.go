package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/yndnr/walletmesh-go/internal/storage/handle"
	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

func (s *WalletService) resolve(h domain.Handle) (*handle.Entry, error) {
	return s.handles.Resolve(h)
}

// Set stores value under key, replacing any existing record.
func (s *WalletService) Set(ctx context.Context, h domain.Handle, key string, value []byte) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("set", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return err
	}
	if key == "" {
		return domain.InvalidParam(3).WithDetails("record key is required")
	}
	return e.Session.Set(ctx, key, value)
}

// Get returns the record stored under key regardless of its age.
// Returns domain.ErrItemNotFound if there is no such record.
func (s *WalletService) Get(ctx context.Context, h domain.Handle, key string) (v *domain.Value, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("get", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, domain.InvalidParam(3).WithDetails("record key is required")
	}
	return s.read(ctx, e, key, backend.ReadOptions{})
}

// GetIfFresh returns the record stored under key if it is younger than the
// session's freshness window. Stale records are reported as
// domain.ErrItemNotFound. A session without a window behaves like Get.
func (s *WalletService) GetIfFresh(ctx context.Context, h domain.Handle, key string) (v *domain.Value, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("get_if_fresh", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, domain.InvalidParam(3).WithDetails("record key is required")
	}
	return s.read(ctx, e, key, backend.ReadOptions{Freshness: e.Freshness, Now: s.clock()})
}

// read copies a backend value out and hands the original back.
func (s *WalletService) read(ctx context.Context, e *handle.Entry, key string, opts backend.ReadOptions) (*domain.Value, error) {
	v, err := e.Session.Get(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.ErrItemNotFound.WithDetailsf("key %q", key)
	}
	out := v.Clone()
	e.Session.ReleaseValue(v)
	return out, nil
}

// List returns the records whose key starts with prefix, ordered by key.
//
// Sequence number records are only returned when prefix selects them
// explicitly.
func (s *WalletService) List(ctx context.Context, h domain.Handle, prefix string) (records []domain.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("list", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return nil, err
	}
	it, err := e.Session.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := it.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	withSequences := strings.HasPrefix(prefix, domain.SequencePrefix)
	for {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		if !withSequences && domain.IsSequenceKey(rec.Key) {
			continue
		}
		records = append(records, domain.Record{
			Key:       rec.Key,
			Value:     append([]byte(nil), rec.Value...),
			CreatedAt: rec.CreatedAt,
		})
	}
}

// SetSequenceNumber attaches seqNo to key.
//
// The marker is stored as its own record, so key need not exist.
func (s *WalletService) SetSequenceNumber(ctx context.Context, h domain.Handle, key string, seqNo int64) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("set_sequence_number", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return err
	}
	if key == "" {
		return domain.InvalidParam(3).WithDetails("record key is required")
	}
	return e.Session.Set(ctx, domain.SequenceKey(seqNo), []byte(key))
}

// KeyBySequenceNumber returns the key seqNo was attached to.
// Returns domain.ErrItemNotFound if seqNo was never set.
func (s *WalletService) KeyBySequenceNumber(ctx context.Context, h domain.Handle, seqNo int64) (key string, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("key_by_sequence_number", start, err) }()

	e, err := s.resolve(h)
	if err != nil {
		return "", err
	}
	v, err := s.read(ctx, e, domain.SequenceKey(seqNo), backend.ReadOptions{})
	if err != nil {
		return "", err
	}
	return string(v.Data), nil
}
