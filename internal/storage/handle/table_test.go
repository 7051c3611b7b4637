package handle

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

type fakeSession struct {
	closes  atomic.Int32
	failErr error
	block   chan struct{}
}

func (s *fakeSession) Set(context.Context, string, []byte) error { return nil }
func (s *fakeSession) Get(context.Context, string, backend.ReadOptions) (*domain.Value, error) {
	return nil, domain.ErrItemNotFound
}
func (s *fakeSession) List(context.Context, string) (backend.Iterator, error) {
	return backend.NewSliceIterator(nil, nil), nil
}
func (s *fakeSession) ReleaseValue(*domain.Value) {}
func (s *fakeSession) Close(context.Context) error {
	if s.block != nil {
		<-s.block
	}
	s.closes.Add(1)
	return s.failErr
}

func TestAllocate_Monotonic(t *testing.T) {
	tbl := NewTable()

	h1, err := tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	h2, _ := tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})

	if h1 != 1 || h2 != 2 {
		t.Errorf("handles = %d, %d, want 1, 2", h1, h2)
	}
	if tbl.OpenCount("w") != 2 {
		t.Errorf("OpenCount() = %d, want 2", tbl.OpenCount("w"))
	}

	if _, err := tbl.Retire(context.Background(), h1); err != nil {
		t.Fatalf("Retire() error: %v", err)
	}
	h3, _ := tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})
	if h3 != 3 {
		t.Errorf("handle after retire = %d, want 3 (no reuse)", h3)
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	tbl := NewTable()
	tbl.next.Store(1<<31 - 1)

	if _, err := tbl.Allocate(&Entry{Session: &fakeSession{}}); !errors.Is(err, domain.ErrInternal) {
		t.Errorf("Allocate() = %v, want ErrInternal", err)
	}
	if tbl.Len() != 0 {
		t.Error("exhausted allocation should not store the entry")
	}
}

func TestResolve(t *testing.T) {
	tbl := NewTable()

	if _, err := tbl.Resolve(1); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("Resolve(1) on empty table = %v, want ErrInvalidHandle", err)
	}

	h, _ := tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})
	e, err := tbl.Resolve(h)
	if err != nil || e.Wallet != "w" {
		t.Fatalf("Resolve(%d) = %v, %v", h, e, err)
	}
	if _, err := tbl.Resolve(h + 1); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("Resolve(h+1) = %v, want ErrInvalidHandle", err)
	}
}

func TestRetire_Twice(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{}
	h, _ := tbl.Allocate(&Entry{Wallet: "w", Session: s})
	ctx := context.Background()

	if _, err := tbl.Retire(ctx, h); err != nil {
		t.Fatalf("first Retire() error: %v", err)
	}
	if _, err := tbl.Retire(ctx, h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("second Retire() = %v, want ErrInvalidHandle", err)
	}
	if _, err := tbl.Resolve(h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("Resolve() after Retire = %v, want ErrInvalidHandle", err)
	}
	if s.closes.Load() != 1 {
		t.Errorf("session closed %d times, want 1", s.closes.Load())
	}
}

func TestRetire_CloseFailureRestores(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{failErr: domain.ErrIO}
	h, _ := tbl.Allocate(&Entry{Wallet: "w", Session: s})

	if _, err := tbl.Retire(context.Background(), h); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("Retire() = %v, want ErrIO", err)
	}
	if _, err := tbl.Resolve(h); err != nil {
		t.Errorf("handle should stay valid after a failed close: %v", err)
	}
}

func TestRetire_HandleInvalidWhileClosing(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{block: make(chan struct{})}
	h, _ := tbl.Allocate(&Entry{Wallet: "w", Session: s})

	done := make(chan error, 1)
	go func() {
		_, err := tbl.Retire(context.Background(), h)
		done <- err
	}()

	// Wait until the retiring mark is visible.
	for {
		e, _ := tbl.entries.Get(h)
		if e.Retiring() {
			break
		}
		runtime.Gosched()
	}

	if _, err := tbl.Resolve(h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("Resolve() while closing = %v, want ErrInvalidHandle", err)
	}
	if _, err := tbl.Retire(context.Background(), h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("concurrent Retire() = %v, want ErrInvalidHandle", err)
	}
	if len(tbl.Handles()) != 0 {
		t.Error("Handles() should skip retiring entries")
	}

	close(s.block)
	if err := <-done; err != nil {
		t.Errorf("Retire() error: %v", err)
	}
}

func TestConcurrentAllocateRetire(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	seen := make([]domain.Handle, 0, 400)
	var mu sync.Mutex

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h, err := tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen = append(seen, h)
				mu.Unlock()
				if i%2 == 0 {
					if _, err := tbl.Retire(context.Background(), h); err != nil {
						t.Error(err)
					}
				}
			}
		}()
	}
	wg.Wait()

	unique := make(map[domain.Handle]bool)
	for _, h := range seen {
		if unique[h] {
			t.Fatalf("handle %d issued twice", h)
		}
		unique[h] = true
	}
	if tbl.Len() != 8*25 {
		t.Errorf("Len() = %d, want %d", tbl.Len(), 8*25)
	}
}

func TestDrain(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 3; i++ {
		tbl.Allocate(&Entry{Wallet: "w", Session: &fakeSession{}})
	}
	var retired []domain.Handle
	err := tbl.Drain(context.Background(), func(h domain.Handle, e *Entry) {
		if e.Wallet != "w" {
			t.Errorf("retired entry wallet = %q", e.Wallet)
		}
		retired = append(retired, h)
	})
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if len(retired) != 3 || retired[0] != 1 || retired[2] != 3 {
		t.Errorf("retired handles = %v, want [1 2 3]", retired)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", tbl.Len())
	}
}
