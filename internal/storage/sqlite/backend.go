// Package sqlite implements the "sqlite" wallet type.
//
// Each wallet is a single SQLite database file under the backend's data
// directory. Every session holds its own connection pool, so sessions over
// one wallet are independent and rely on SQLite locking for consistency.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

// TypeName is the registered name of this backend.
const TypeName = "sqlite"

const fileSuffix = ".db"

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS wallet_meta (
    name  TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Backend is the SQLite-backed wallet backend.
type Backend struct {
	dir    string
	logger *slog.Logger
	clock  func() time.Time

	mu   sync.Mutex
	open map[string]int
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Policy  = (*Backend)(nil)
)

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
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
		logger: slog.Default(),
		clock:  time.Now,
		open:   make(map[string]int),
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
func (b *Backend) Create(ctx context.Context, name string, _ domain.Config, _ domain.Credentials) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return domain.ErrIO.WithDetails("create data directory").WithCause(err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return domain.ErrWalletAlreadyExists.WithDetailsf("wallet %q storage exists", name)
		}
		return domain.ErrIO.WithDetails("create wallet file").WithCause(err)
	}
	f.Close()

	db, err := openDB(ctx, path)
	if err != nil {
		removeFiles(path)
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		removeFiles(path)
		return domain.ErrIO.WithDetails("create schema").WithCause(err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO wallet_meta (name, value) VALUES ('created_at', ?)`,
		fmt.Sprint(b.clock().UnixMilli())); err != nil {
		removeFiles(path)
		return domain.ErrIO.WithDetails("write wallet metadata").WithCause(err)
	}

	b.logger.Debug("wallet storage created", "wallet", name, "path", path)
	return nil
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, name string, _, _ domain.Config, _ domain.Credentials) (backend.Session, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, domain.ErrIO.WithDetailsf("wallet %q storage not found", name).WithCause(err)
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.open[name]++
	b.mu.Unlock()

	return &session{b: b, name: name, db: db}, nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(_ context.Context, name string, _ domain.Config, _ domain.Credentials) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open[name] > 0 {
		return domain.ErrIO.WithDetailsf("wallet %q is open", name)
	}
	if _, err := os.Stat(path); err != nil {
		return domain.ErrIO.WithDetailsf("wallet %q storage not found", name).WithCause(err)
	}
	if err := removeFiles(path); err != nil {
		return domain.ErrIO.WithDetails("remove wallet file").WithCause(err)
	}
	b.logger.Debug("wallet storage deleted", "wallet", name)
	return nil
}

func (b *Backend) release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[name] <= 1 {
		delete(b.open, name)
		return
	}
	b.open[name]--
}

func (b *Backend) path(name string) (string, error) {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.ErrIO.WithDetailsf("wallet name %q is not a valid storage name", name)
	}
	return filepath.Join(b.dir, name+fileSuffix), nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.ErrIO.WithDetails("open sqlite db").WithCause(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("ping sqlite db", err)
	}
	return db, nil
}

func removeFiles(path string) error {
	var first error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = err
		}
	}
	return first
}

// classify maps a SQLite failure onto the domain error taxonomy.
func classify(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_NOTADB, sqlite3lib.SQLITE_CORRUPT:
			return domain.ErrIO.WithDetailsf("%s: corrupt database", op).WithCause(err)
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return domain.ErrIO.WithDetailsf("%s: database busy", op).WithCause(err)
		}
	}
	return domain.ErrIO.WithDetails(op).WithCause(err)
}

// ============================================================================
// Session
// ============================================================================

type session struct {
	b      *Backend
	name   string
	db     *sql.DB
	closed atomic.Bool
}

func (s *session) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return domain.ErrInvalidHandle
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (key, value, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		key, value, s.b.clock().UnixNano())
	if err != nil {
		return classify("write record", err)
	}
	return nil
}

func (s *session) Get(ctx context.Context, key string, opts backend.ReadOptions) (*domain.Value, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	var (
		value     []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM records WHERE key = ?`, key).Scan(&value, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound.WithDetailsf("key %q", key)
		}
		return nil, classify("read record", err)
	}
	at := time.Unix(0, createdAt)
	if opts.Stale(at) {
		return nil, domain.ErrItemNotFound.WithDetailsf("key %q is stale", key)
	}
	return &domain.Value{Data: value, CreatedAt: at}, nil
}

func (s *session) List(ctx context.Context, prefix string) (backend.Iterator, error) {
	if s.closed.Load() {
		return nil, domain.ErrInvalidHandle
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, created_at FROM records WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, classify("list records", err)
	}
	return &rowIterator{rows: rows, prefix: prefix}, nil
}

// ReleaseValue is a no-op: values are ordinary Go memory.
func (s *session) ReleaseValue(*domain.Value) {}

func (s *session) Close(context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return domain.ErrInvalidHandle
	}
	defer s.b.release(s.name)
	if err := s.db.Close(); err != nil {
		s.b.logger.Error("sqlite db close failed", "wallet", s.name, "error", err)
	}
	return nil
}

// rowIterator streams matching rows. Keys are ordered bytewise, so the
// first key without the prefix ends the scan.
type rowIterator struct {
	rows   *sql.Rows
	prefix string
	done   bool
	once   sync.Once
}

func (it *rowIterator) Next(ctx context.Context) (*domain.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		it.done = true
		if err := it.rows.Err(); err != nil {
			return nil, classify("list records", err)
		}
		return nil, io.EOF
	}

	var (
		rec       domain.Record
		createdAt int64
	)
	if err := it.rows.Scan(&rec.Key, &rec.Value, &createdAt); err != nil {
		return nil, classify("scan record", err)
	}
	if !strings.HasPrefix(rec.Key, it.prefix) {
		it.done = true
		return nil, io.EOF
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

func (it *rowIterator) Close() error {
	var err error
	it.once.Do(func() {
		it.done = true
		err = it.rows.Close()
	})
	return err
}
