// Package catalog persists wallet descriptors and coordinates in-flight
// lifecycle operations on wallet names.
//
// A name moves through the catalog in two steps: it is first reserved
// (by a creator) or acquired (by a deleter), which marks it busy, and then
// committed or removed. While a name is busy every other create, delete or
// open of that name is refused, so no caller ever observes a half-created
// or half-deleted wallet. In-flight opens pin a name, which blocks deletion
// until the open completes.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/yndnr/walletmesh-go/internal/storage"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

const keyPrefix = "wallet/"

// Catalog is a concurrent-safe wallet descriptor store.
type Catalog struct {
	kv     storage.KVEngine
	logger *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
	pins map[string]int
}

// New creates a catalog over kv.
func New(kv storage.KVEngine, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		kv:     kv,
		logger: logger,
		busy:   make(map[string]struct{}),
		pins:   make(map[string]int),
	}
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Reserve claims name for creation.
// Returns domain.ErrWalletAlreadyExists if the wallet exists or the name
// is busy.
func (c *Catalog) Reserve(ctx context.Context, name string) error {
	c.mu.Lock()
	if _, busy := c.busy[name]; busy {
		c.mu.Unlock()
		return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q is being created or deleted", name)
	}
	c.busy[name] = struct{}{}
	c.mu.Unlock()

	exists, err := c.exists(ctx, name)
	if err != nil {
		c.Release(name)
		return err
	}
	if exists {
		c.Release(name)
		return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q", name)
	}
	return nil
}

// Commit persists d and releases its reservation.
func (c *Catalog) Commit(ctx context.Context, d *domain.Descriptor) error {
	defer c.Release(d.Name)

	data, err := json.Marshal(d)
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}
	if err := c.kv.SetIfAbsent(ctx, key(d.Name), data); err != nil {
		if errors.Is(err, storage.ErrKeyExists) {
			return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q", d.Name)
		}
		return domain.ErrIO.WithDetails("persist descriptor").WithCause(err)
	}
	return nil
}

// Acquire claims an existing wallet for deletion and returns its descriptor.
// Returns domain.ErrIO if the wallet does not exist, is busy, or has an
// open in flight.
func (c *Catalog) Acquire(ctx context.Context, name string) (*domain.Descriptor, error) {
	c.mu.Lock()
	if _, busy := c.busy[name]; busy {
		c.mu.Unlock()
		return nil, domain.ErrIO.WithDetailsf("wallet %q is busy", name)
	}
	if c.pins[name] > 0 {
		c.mu.Unlock()
		return nil, domain.ErrIO.WithDetailsf("wallet %q is being opened", name)
	}
	c.busy[name] = struct{}{}
	c.mu.Unlock()

	d, err := c.get(ctx, name)
	if err != nil {
		c.Release(name)
		return nil, err
	}
	return d, nil
}

// Remove deletes the descriptor of an acquired wallet and releases it.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	defer c.Release(name)

	if err := c.kv.Delete(ctx, key(name)); err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return domain.ErrIO.WithDetailsf("wallet %q not found", name)
		}
		return domain.ErrIO.WithDetails("remove descriptor").WithCause(err)
	}
	return nil
}

// Release drops a reservation or acquisition without changing storage.
func (c *Catalog) Release(name string) {
	c.mu.Lock()
	delete(c.busy, name)
	c.mu.Unlock()
}

// Pin returns the descriptor of name and blocks its deletion until Unpin.
// Returns domain.ErrIO if the wallet does not exist or is busy.
func (c *Catalog) Pin(ctx context.Context, name string) (*domain.Descriptor, error) {
	c.mu.Lock()
	if _, busy := c.busy[name]; busy {
		c.mu.Unlock()
		return nil, domain.ErrIO.WithDetailsf("wallet %q is busy", name)
	}
	c.pins[name]++
	c.mu.Unlock()

	d, err := c.get(ctx, name)
	if err != nil {
		c.Unpin(name)
		return nil, err
	}
	return d, nil
}

// Unpin releases a pin taken by Pin.
func (c *Catalog) Unpin(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pins[name] <= 1 {
		delete(c.pins, name)
		return
	}
	c.pins[name]--
}

// Busy reports whether name is reserved or acquired.
func (c *Catalog) Busy(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.busy[name]
	return busy
}

// Reserved returns the number of busy names.
func (c *Catalog) Reserved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.busy)
}

// Get returns the descriptor of name.
// Returns domain.ErrIO if the wallet does not exist.
func (c *Catalog) Get(ctx context.Context, name string) (*domain.Descriptor, error) {
	return c.get(ctx, name)
}

// List returns all descriptors ordered by name.
func (c *Catalog) List(ctx context.Context) ([]*domain.Descriptor, error) {
	var (
		out     []*domain.Descriptor
		decoded error
	)
	err := c.kv.Scan(ctx, []byte(keyPrefix), func(k, v []byte) bool {
		var d domain.Descriptor
		if err := json.Unmarshal(v, &d); err != nil {
			decoded = err
			return false
		}
		out = append(out, &d)
		return true
	})
	if err != nil {
		return nil, domain.ErrIO.WithDetails("scan descriptors").WithCause(err)
	}
	if decoded != nil {
		return nil, domain.ErrInternal.WithDetails("decode descriptor").WithCause(decoded)
	}
	return out, nil
}

func (c *Catalog) get(ctx context.Context, name string) (*domain.Descriptor, error) {
	data, err := c.kv.Get(ctx, key(name))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, domain.ErrIO.WithDetailsf("wallet %q not found", name)
		}
		return nil, domain.ErrIO.WithDetails("read descriptor").WithCause(err)
	}
	var d domain.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		c.logger.Error("corrupt wallet descriptor", "wallet", name, "error", err)
		return nil, domain.ErrInternal.WithDetails("decode descriptor").WithCause(err)
	}
	return &d, nil
}

func (c *Catalog) exists(ctx context.Context, name string) (bool, error) {
	_, err := c.kv.Get(ctx, key(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	return false, domain.ErrIO.WithDetails("read descriptor").WithCause(err)
}
