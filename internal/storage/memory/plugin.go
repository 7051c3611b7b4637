package memory

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/cmap"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// TypeName is the conventional registration name of the plugin.
const TypeName = "inmem"

type entry struct {
	value     []byte
	createdAt time.Time
}

type wallet struct {
	mu      sync.RWMutex
	records map[string]entry
	opens   atomic.Int32
}

// Plugin is an in-memory wallet store.
type Plugin struct {
	wallets  *cmap.Map[string, *wallet]
	sessions *cmap.Map[int32, *wallet]
	next     atomic.Int32
	clock    func() time.Time

	values   atomic.Int64
	searches atomic.Int64
}

// Option configures the Plugin.
type Option func(*Plugin)

// WithClock sets the clock used to timestamp records.
func WithClock(clock func() time.Time) Option {
	return func(p *Plugin) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New creates an empty plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		wallets:  cmap.New[string, *wallet](),
		sessions: cmap.New[int32, *wallet](),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Funcs returns the plugin's callback table.
func (p *Plugin) Funcs() *backend.Funcs {
	return &backend.Funcs{
		Create:        p.create,
		Open:          p.open,
		Close:         p.close,
		Delete:        p.delete,
		Set:           p.set,
		Get:           p.get,
		GetIfFresh:    p.getIfFresh,
		List:          p.list,
		ReleaseValue:  p.releaseValue,
		ReleaseSearch: p.releaseSearch,
	}
}

// Reset drops every wallet and session.
func (p *Plugin) Reset() {
	p.wallets.Clear()
	p.sessions.Clear()
	p.values.Store(0)
	p.searches.Store(0)
}

// OutstandingValues returns the number of values not yet released.
func (p *Plugin) OutstandingValues() int64 {
	return p.values.Load()
}

// OutstandingSearches returns the number of searches not yet released.
func (p *Plugin) OutstandingSearches() int64 {
	return p.searches.Load()
}

// Wallets returns the names of the stored wallets in sorted order.
func (p *Plugin) Wallets() []string {
	names := p.wallets.Keys()
	sort.Strings(names)
	return names
}

func (p *Plugin) create(_ context.Context, name, _, _ string) error {
	if !p.wallets.SetIfAbsent(name, &wallet{records: make(map[string]entry)}) {
		return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q", name)
	}
	return nil
}

func (p *Plugin) open(_ context.Context, name, _, _, _ string) (int32, error) {
	w, ok := p.wallets.Get(name)
	if !ok {
		return 0, domain.ErrIO.WithDetailsf("wallet %q not found", name)
	}
	h := p.next.Add(1)
	w.opens.Add(1)
	p.sessions.Set(h, w)
	return h, nil
}

func (p *Plugin) close(_ context.Context, h int32) error {
	w, ok := p.sessions.Pop(h)
	if !ok {
		return domain.ErrInvalidHandle.WithDetailsf("session %d", h)
	}
	w.opens.Add(-1)
	return nil
}

func (p *Plugin) delete(_ context.Context, name, _, _ string) error {
	w, ok := p.wallets.Get(name)
	if !ok {
		return domain.ErrIO.WithDetailsf("wallet %q not found", name)
	}
	if !p.wallets.DeleteIf(name, func(cur *wallet) bool { return cur == w && w.opens.Load() == 0 }) {
		return domain.ErrIO.WithDetailsf("wallet %q is open", name)
	}
	return nil
}

func (p *Plugin) session(h int32) (*wallet, error) {
	w, ok := p.sessions.Get(h)
	if !ok {
		return nil, domain.ErrInvalidHandle.WithDetailsf("session %d", h)
	}
	return w, nil
}

func (p *Plugin) set(_ context.Context, h int32, key string, value []byte) error {
	w, err := p.session(h)
	if err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)

	w.mu.Lock()
	w.records[key] = entry{value: v, createdAt: p.clock()}
	w.mu.Unlock()
	return nil
}

func (p *Plugin) lookup(h int32, key string) (entry, error) {
	w, err := p.session(h)
	if err != nil {
		return entry{}, err
	}
	w.mu.RLock()
	e, ok := w.records[key]
	w.mu.RUnlock()
	if !ok {
		return entry{}, domain.ErrItemNotFound.WithDetailsf("key %q", key)
	}
	return e, nil
}

func (p *Plugin) issue(e entry) *domain.Value {
	p.values.Add(1)
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return &domain.Value{Data: v, CreatedAt: e.createdAt}
}

func (p *Plugin) get(_ context.Context, h int32, key string) (*domain.Value, error) {
	e, err := p.lookup(h, key)
	if err != nil {
		return nil, err
	}
	return p.issue(e), nil
}

func (p *Plugin) getIfFresh(_ context.Context, h int32, key string, opts backend.ReadOptions) (*domain.Value, error) {
	e, err := p.lookup(h, key)
	if err != nil {
		return nil, err
	}
	if opts.Stale(e.createdAt) {
		return nil, domain.ErrItemNotFound.WithDetailsf("key %q is stale", key)
	}
	return p.issue(e), nil
}

func (p *Plugin) list(_ context.Context, h int32, prefix string) (backend.RecordSet, error) {
	w, err := p.session(h)
	if err != nil {
		return nil, err
	}

	w.mu.RLock()
	records := make([]domain.Record, 0, len(w.records))
	for k, e := range w.records {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		v := make([]byte, len(e.value))
		copy(v, e.value)
		records = append(records, domain.Record{Key: k, Value: v, CreatedAt: e.createdAt})
	}
	w.mu.RUnlock()

	p.searches.Add(1)
	return &search{records: records}, nil
}

func (p *Plugin) releaseValue(_ int32, v *domain.Value) {
	if v != nil {
		p.values.Add(-1)
	}
}

func (p *Plugin) releaseSearch(_ int32, rs backend.RecordSet) {
	if rs != nil {
		p.searches.Add(-1)
	}
}

// search is a snapshot of matching records; map order makes its ordering
// unspecified.
type search struct {
	records []domain.Record
	pos     int
}

func (s *search) Next(context.Context) (*domain.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return &r, nil
}
