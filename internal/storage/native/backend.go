// Package native implements the "default" wallet type.
//
// Each wallet is a Badger store in its own directory under the backend's
// data directory. Sessions over the same wallet share one store, which is
// closed when the last session over it closes. When the credentials used at
// creation carry a key, record values are sealed with XChaCha20-Poly1305
// under an Argon2id-derived key and every later open must present the same
// key.
package native

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/walletmesh-go/internal/storage"
	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// TypeName is the registered name of this backend.
const TypeName = domain.DefaultType

const (
	metaKey      = "m/meta"
	recordPrefix = "r/"
	metaVersion  = 1
)

// Backend is the Badger-backed wallet backend.
type Backend struct {
	dir        string
	badger     storage.BadgerConfig
	kdf        KDFParams
	logger     *slog.Logger
	registerer prometheus.Registerer
	clock      func() time.Time

	mu     sync.Mutex
	stores map[string]*sharedStore
}

type sharedStore struct {
	engine *storage.BadgerEngine
	meta   meta
	refs   int
}

type meta struct {
	Version   int    `json:"version"`
	Encrypted bool   `json:"encrypted"`
	Salt      []byte `json:"salt,omitempty"`
	Check     []byte `json:"check,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Policy  = (*Backend)(nil)
)

// Option configures the Backend.
type Option func(*Backend)

// WithBadgerConfig sets the Badger tuning used for every wallet store.
func WithBadgerConfig(cfg storage.BadgerConfig) Option {
	return func(b *Backend) {
		b.badger = cfg
	}
}

// WithKDFParams sets the key derivation parameters.
func WithKDFParams(p KDFParams) Option {
	return func(b *Backend) {
		b.kdf = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics registers per-store size gauges while a wallet is open.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Backend) {
		b.registerer = reg
	}
}

// WithClock sets the clock used to timestamp records.
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New creates a backend storing wallets under dir.
func New(dir string, opts ...Option) *Backend {
	b := &Backend{
		dir:    dir,
		badger: storage.DefaultBadgerConfig(),
		kdf:    DefaultKDFParams(),
		logger: slog.Default(),
		clock:  time.Now,
		stores: make(map[string]*sharedStore),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("backend", TypeName)
	return b
}

// AllowConcurrentSessions implements backend.Policy.
func (b *Backend) AllowConcurrentSessions() bool { return true }

// AllowDeleteWhileOpen implements backend.Policy.
func (b *Backend) AllowDeleteWhileOpen() bool { return false }

// Create implements backend.Backend.
func (b *Backend) Create(ctx context.Context, name string, _ domain.Config, creds domain.Credentials) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, open := b.stores[name]; open {
		return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q storage is open", name)
	}
	if _, err := os.Stat(path); err == nil {
		return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q storage exists", name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return domain.ErrIO.WithCause(err)
	}

	m := meta{Version: metaVersion, CreatedAt: b.clock().UnixMilli()}
	if creds.HasKey() {
		salt, err := newSalt()
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		s, err := newSealer(creds.Key, salt, b.kdf)
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		check, err := s.seal(checkPlaintext, []byte(metaKey))
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		m.Encrypted, m.Salt, m.Check = true, salt, check
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return domain.ErrIO.WithDetails("create wallet directory").WithCause(err)
	}
	if err := b.writeMeta(ctx, name, path, m); err != nil {
		os.RemoveAll(path)
		return err
	}

	b.logger.Debug("wallet storage created", "wallet", name, "encrypted", m.Encrypted)
	return nil
}

func (b *Backend) writeMeta(ctx context.Context, name, path string, m meta) error {
	engine, err := b.openEngine(name, path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		engine.Close()
		return domain.ErrInternal.WithCause(err)
	}
	if err := engine.Set(ctx, []byte(metaKey), data); err != nil {
		engine.Close()
		return domain.ErrIO.WithDetails("write wallet metadata").WithCause(err)
	}
	if err := engine.Close(); err != nil {
		return domain.ErrIO.WithCause(err)
	}
	return nil
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, name string, _, _ domain.Config, creds domain.Credentials) (backend.Session, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.stores[name]
	if !ok {
		if _, err := os.Stat(path); err != nil {
			return nil, domain.ErrIO.WithDetailsf("wallet %q storage not found", name).WithCause(err)
		}
		engine, err := b.openEngine(name, path)
		if err != nil {
			return nil, err
		}
		m, err := readMeta(ctx, engine)
		if err != nil {
			engine.Close()
			return nil, err
		}
		st = &sharedStore{engine: engine, meta: m}
	}

	s, err := b.unlock(st.meta, creds)
	if err != nil {
		if !ok {
			st.engine.Close()
		}
		return nil, err
	}

	if !ok {
		if b.registerer != nil {
			if _, err := st.engine.RegisterMetrics(b.registerer); err != nil {
				b.logger.Warn("wallet store metrics not registered", "wallet", name, "error", err)
			}
		}
		b.stores[name] = st
	}
	st.refs++

	return &session{b: b, name: name, store: st, sealer: s}, nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, name string, _ domain.Config, creds domain.Credentials) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, open := b.stores[name]; open {
		return domain.ErrIO.WithDetailsf("wallet %q is open", name)
	}
	if _, err := os.Stat(path); err != nil {
		return domain.ErrIO.WithDetailsf("wallet %q storage not found", name).WithCause(err)
	}

	engine, err := b.openEngine(name, path)
	if err != nil {
		return err
	}
	m, err := readMeta(ctx, engine)
	closeErr := engine.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return domain.ErrIO.WithCause(closeErr)
	}
	if _, err := b.unlock(m, creds); err != nil {
		return err
	}

	if err := os.RemoveAll(path); err != nil {
		return domain.ErrIO.WithDetails("remove wallet directory").WithCause(err)
	}
	b.logger.Debug("wallet storage deleted", "wallet", name)
	return nil
}

// OpenStores returns the number of wallet stores currently open.
func (b *Backend) OpenStores() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stores)
}

// Close closes every open store. Sessions over them become unusable.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var first error
	for name, st := range b.stores {
		if err := st.engine.Close(); err != nil && first == nil {
			first = err
		}
		delete(b.stores, name)
	}
	return first
}

func (b *Backend) release(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.stores[name]
	if !ok {
		return nil
	}
	st.refs--
	if st.refs > 0 {
		return nil
	}
	delete(b.stores, name)
	if err := st.engine.Close(); err != nil {
		return domain.ErrIO.WithDetails("close wallet store").WithCause(err)
	}
	return nil
}

func (b *Backend) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.ErrIO.WithDetailsf("wallet name %q is not a valid storage name", name)
	}
	return filepath.Join(b.dir, name), nil
}

func (b *Backend) openEngine(name, path string) (*storage.BadgerEngine, error) {
	cfg := storage.KVConfig{Dir: path, Name: "wallet/" + name, Badger: b.badger}
	engine, err := storage.NewBadgerEngine(cfg, b.logger)
	if err != nil {
		return nil, domain.ErrIO.WithDetailsf("open wallet %q storage", name).WithCause(err)
	}
	return engine, nil
}

func (b *Backend) unlock(m meta, creds domain.Credentials) (*sealer, error) {
	if !m.Encrypted {
		if creds.HasKey() {
			return nil, domain.ErrAccessFailed.WithDetails("wallet is not encrypted")
		}
		return nil, nil
	}
	if !creds.HasKey() {
		return nil, domain.ErrAccessFailed.WithDetails("wallet key required")
	}
	s, err := newSealer(creds.Key, m.Salt, b.kdf)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	if _, err := s.open(m.Check, []byte(metaKey)); err != nil {
		return nil, domain.ErrAccessFailed.WithDetails("wallet key rejected")
	}
	return s, nil
}

func readMeta(ctx context.Context, engine *storage.BadgerEngine) (meta, error) {
	var m meta
	data, err := engine.Get(ctx, []byte(metaKey))
	if err != nil {
		return m, domain.ErrIO.WithDetails("read wallet metadata").WithCause(err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, domain.ErrIO.WithDetails("decode wallet metadata").WithCause(err)
	}
	if m.Version != metaVersion {
		return m, domain.ErrIO.WithDetailsf("unsupported wallet metadata version %d", m.Version)
	}
	return m, nil
}

// ============================================================================
// Session
// ============================================================================

type session struct {
	b      *Backend
	name   string
	store  *sharedStore
	sealer *sealer
	closed atomic.Bool
}

func (s *session) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return domain.ErrInvalidHandle
	}
	payload := value
	if s.sealer != nil {
		sealed, err := s.sealer.seal(value, []byte(key))
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		payload = sealed
	}
	if err := s.store.engine.Set(ctx, recordKey(key), encodeRecord(s.b.clock(), payload)); err != nil {
		return domain.ErrIO.WithDetails("write record").WithCause(err)
	}
	return nil
}

func (s *session) Get(ctx context.Context, key string, opts backend.ReadOptions) (*domain.Value, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	raw, err := s.store.engine.Get(ctx, recordKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, domain.ErrItemNotFound.WithDetailsf("key %q", key)
		}
		return nil, domain.ErrIO.WithDetails("read record").WithCause(err)
	}
	rec, err := s.decode(key, raw)
	if err != nil {
		return nil, err
	}
	if opts.Stale(rec.CreatedAt) {
		return nil, domain.ErrItemNotFound.WithDetailsf("key %q is stale", key)
	}
	return &domain.Value{Data: rec.Value, CreatedAt: rec.CreatedAt}, nil
}

func (s *session) List(ctx context.Context, prefix string) (backend.Iterator, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	var (
		records []domain.Record
		decErr  error
	)
	err := s.store.engine.Scan(ctx, recordKey(prefix), func(k, v []byte) bool {
		key := strings.TrimPrefix(string(k), recordPrefix)
		rec, err := s.decode(key, v)
		if err != nil {
			decErr = err
			return false
		}
		records = append(records, rec)
		return true
	})
	if err != nil {
		return nil, domain.ErrIO.WithDetails("scan records").WithCause(err)
	}
	if decErr != nil {
		return nil, decErr
	}
	return backend.NewSliceIterator(records, nil), nil
}

// ReleaseValue is a no-op: values are ordinary Go memory.
func (s *session) ReleaseValue(*domain.Value) {}

// Close releases the session's reference on the shared store. The reference
// is dropped even when closing the store fails, so the failure is logged
// rather than returned.
func (s *session) Close(context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return domain.ErrInvalidHandle
	}
	if err := s.b.release(s.name); err != nil {
		s.b.logger.Error("wallet store close failed", "wallet", s.name, "error", err)
	}
	return nil
}

func (s *session) decode(key string, raw []byte) (domain.Record, error) {
	createdAt, payload, err := decodeRecord(raw)
	if err != nil {
		return domain.Record{}, domain.ErrIO.WithDetailsf("corrupt record %q", key).WithCause(err)
	}
	if s.sealer != nil {
		payload, err = s.sealer.open(payload, []byte(key))
		if err != nil {
			return domain.Record{}, domain.ErrAccessFailed.WithDetailsf("record %q", key).WithCause(err)
		}
	}
	return domain.Record{Key: key, Value: payload, CreatedAt: createdAt}, nil
}

func recordKey(key string) []byte {
	return []byte(recordPrefix + key)
}

// encodeRecord lays a record out as an 8-byte big-endian creation time in
// Unix nanoseconds followed by the payload.
func encodeRecord(createdAt time.Time, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(createdAt.UnixNano()))
	copy(buf[8:], payload)
	return buf
}

func decodeRecord(raw []byte) (time.Time, []byte, error) {
	if len(raw) < 8 {
		return time.Time{}, nil, fmt.Errorf("record too short: %d bytes", len(raw))
	}
	ns := int64(binary.BigEndian.Uint64(raw[:8]))
	return time.Unix(0, ns), raw[8:], nil
}
