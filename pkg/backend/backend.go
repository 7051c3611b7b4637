package backend

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// Backend manages the durable storage of wallets of one type.
type Backend interface {
	// Create allocates storage for a new wallet.
	// Returns domain.ErrWalletAlreadyExists if storage for name exists.
	Create(ctx context.Context, name string, cfg domain.Config, creds domain.Credentials) error

	// Open instantiates a session over existing storage.
	// Returns domain.ErrIO if storage for name does not exist or cannot be
	// accessed, domain.ErrAccessFailed if the credentials are rejected.
	Open(ctx context.Context, name string, cfg, runtime domain.Config, creds domain.Credentials) (Session, error)

	// Delete destroys the storage of a wallet.
	// Returns domain.ErrIO if storage for name does not exist.
	Delete(ctx context.Context, name string, cfg domain.Config, creds domain.Credentials) error
}

// Session is an open instance of a wallet.
type Session interface {
	// Set upserts a record.
	Set(ctx context.Context, key string, value []byte) error

	// Get reads a record. Returns domain.ErrItemNotFound when the record is
	// missing, or when opts carries a freshness window the record has aged
	// past.
	Get(ctx context.Context, key string, opts ReadOptions) (*domain.Value, error)

	// List returns the records whose key starts with prefix.
	// Ordering is backend-defined. The iterator is not restartable.
	List(ctx context.Context, prefix string) (Iterator, error)

	// ReleaseValue hands a value produced by Get back to the backend.
	ReleaseValue(v *domain.Value)

	// Close releases the session.
	// Returns domain.ErrInvalidHandle if the session is already closed.
	Close(ctx context.Context) error
}

// Iterator walks the result of Session.List.
type Iterator interface {
	// Next returns the next record, or io.EOF when exhausted.
	Next(ctx context.Context) (*domain.Record, error)

	// Close releases the search. Closing twice is a no-op.
	Close() error
}

// ReadOptions parameterizes Session.Get.
//
// A zero Freshness reads the record regardless of its age. A non-zero
// Freshness makes the backend compare Now against the record's stored
// creation time.
type ReadOptions struct {
	Freshness time.Duration
	Now       time.Time
}

// Stale reports whether a record created at createdAt is outside the window.
func (o ReadOptions) Stale(createdAt time.Time) bool {
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	return domain.IsStale(createdAt, now, o.Freshness)
}

// Policy is implemented by backends that restrict session sharing.
type Policy interface {
	// AllowConcurrentSessions reports whether a wallet may be open in more
	// than one session at a time.
	AllowConcurrentSessions() bool

	// AllowDeleteWhileOpen reports whether a wallet may be deleted while a
	// session over it is open.
	AllowDeleteWhileOpen() bool
}

// PolicyOf returns the session policy of b.
func PolicyOf(b Backend) (concurrent, deleteWhileOpen bool) {
	if p, ok := b.(Policy); ok {
		return p.AllowConcurrentSessions(), p.AllowDeleteWhileOpen()
	}
	return true, false
}

// ============================================================================
// Slice Iterator
// ============================================================================

// SliceIterator iterates over a materialized record slice.
type SliceIterator struct {
	records []domain.Record
	pos     int
	once    sync.Once
	release func()
}

// NewSliceIterator returns an iterator over records. release, if not nil,
// runs once when the iterator is closed.
func NewSliceIterator(records []domain.Record, release func()) *SliceIterator {
	return &SliceIterator{records: records, release: release}
}

// Next implements Iterator.
func (it *SliceIterator) Next(ctx context.Context) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.pos]
	it.pos++
	return &rec, nil
}

// Close implements Iterator.
func (it *SliceIterator) Close() error {
	it.once.Do(func() {
		it.records = nil
		if it.release != nil {
			it.release()
		}
	})
	return nil
}
