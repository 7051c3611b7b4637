// Package registry maps wallet type names to backend implementations.
//
// Registration is append-only: a name is bound once for the lifetime of the
// registry and there is no unregister operation.
package registry

import (
	"sort"
	"sync"

	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// Argument positions of a registration call.
const (
	positionName = 2
	positionImpl = 3
)

// Registry is a concurrent-safe wallet type registry.
type Registry struct {
	mu    sync.RWMutex
	types map[string]backend.Backend
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]backend.Backend)}
}

// Register binds name to impl.
//
// impl is either a backend.Backend or a *backend.Funcs callback table.
// Validation runs before the uniqueness check: an empty name is
// InvalidParam(2), a nil implementation InvalidParam(3), and a callback
// table reports its first missing entry point positionally. A name that is
// already bound fails with domain.ErrTypeAlreadyRegistered; override does
// not lift that restriction.
func (r *Registry) Register(name string, impl any, _ bool) error {
	if name == "" {
		return domain.InvalidParam(positionName).WithDetails("type name is empty")
	}

	b, err := resolve(impl)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return domain.ErrTypeAlreadyRegistered.WithDetails(name)
	}
	r.types[name] = b
	return nil
}

func resolve(impl any) (backend.Backend, error) {
	if f, ok := impl.(*backend.Funcs); impl == nil || (ok && f == nil) {
		return nil, domain.InvalidParam(positionImpl).WithDetails("implementation is nil")
	}

	if v, ok := impl.(backend.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	switch b := impl.(type) {
	case *backend.Funcs:
		return b.Backend(), nil
	case backend.Backend:
		return b, nil
	default:
		return nil, domain.InvalidParam(positionImpl).WithDetailsf("unsupported implementation %T", impl)
	}
}

// Lookup returns the backend bound to name.
func (r *Registry) Lookup(name string) (backend.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.types[name]
	if !ok {
		return nil, domain.ErrUnknownType.WithDetails(name)
	}
	return b, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
