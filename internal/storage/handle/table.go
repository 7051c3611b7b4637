// Package handle maps opaque wallet handles to open backend sessions.
//
// Handles are allocated monotonically from 1 and never reused. Retiring a
// handle removes its entry outright, so a retired handle is
// indistinguishable from one that was never issued.
package handle

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/cmap"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// ErrExhausted is returned when the handle space is used up.
var ErrExhausted = domain.ErrInternal.WithDetails("wallet handle space exhausted")

// Entry is an open session owned by the table.
type Entry struct {
	Wallet    string
	Type      string
	Session   backend.Session
	Freshness time.Duration
	OpenedAt  time.Time

	// Exclusive marks a session that holds its wallet alone.
	Exclusive bool

	closing atomic.Bool
}

// Retiring reports whether the entry is being closed.
func (e *Entry) Retiring() bool {
	return e.closing.Load()
}

// Table is a concurrent-safe handle table.
type Table struct {
	entries *cmap.Map[domain.Handle, *Entry]
	next    atomic.Int32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: cmap.New[domain.Handle, *Entry]()}
}

// Allocate stores entry under a fresh handle.
func (t *Table) Allocate(entry *Entry) (domain.Handle, error) {
	for {
		cur := t.next.Load()
		if cur == math.MaxInt32 {
			return 0, ErrExhausted
		}
		if t.next.CompareAndSwap(cur, cur+1) {
			h := domain.Handle(cur + 1)
			t.entries.Set(h, entry)
			return h, nil
		}
	}
}

// Resolve returns the entry for h.
// Returns domain.ErrInvalidHandle if h is unknown or being retired.
func (t *Table) Resolve(h domain.Handle) (*Entry, error) {
	e, ok := t.entries.Get(h)
	if !ok || e.Retiring() {
		return nil, domain.ErrInvalidHandle.WithDetailsf("handle %d", h)
	}
	return e, nil
}

// Retire closes the session behind h and removes it from the table.
//
// The entry is marked retiring first so concurrent callers see the handle
// as invalid, then the backend close runs without any table lock held. If
// the backend close fails the entry is restored and the error returned.
func (t *Table) Retire(ctx context.Context, h domain.Handle) (*Entry, error) {
	e, ok := t.entries.Get(h)
	if !ok || !e.closing.CompareAndSwap(false, true) {
		return nil, domain.ErrInvalidHandle.WithDetailsf("handle %d", h)
	}

	if err := e.Session.Close(ctx); err != nil {
		e.closing.Store(false)
		return nil, err
	}

	t.entries.Delete(h)
	return e, nil
}

// OpenCount returns the number of live handles over wallet.
func (t *Table) OpenCount(wallet string) int {
	n := 0
	t.entries.Range(func(_ domain.Handle, e *Entry) bool {
		if e.Wallet == wallet {
			n++
		}
		return true
	})
	return n
}

// Len returns the number of entries, including ones being retired.
func (t *Table) Len() int {
	return t.entries.Count()
}

// Handles returns the live handles in ascending order.
func (t *Table) Handles() []domain.Handle {
	hs := make([]domain.Handle, 0, t.entries.Count())
	t.entries.Range(func(h domain.Handle, e *Entry) bool {
		if !e.Retiring() {
			hs = append(hs, h)
		}
		return true
	})
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// Drain retires every handle, returning the first close error.
// retired, when non-nil, is called for each entry removed.
func (t *Table) Drain(ctx context.Context, retired func(domain.Handle, *Entry)) error {
	var first error
	for _, h := range t.Handles() {
		e, err := t.Retire(ctx, h)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if retired != nil {
			retired(h, e)
		}
	}
	return first
}
