package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/walletmesh-go/internal/storage"
	"github.com/yndnr/walletmesh-go/internal/storage/memory"
	"github.com/yndnr/walletmesh-go/internal/telemetry/logger"
	"github.com/yndnr/walletmesh-go/pkg/backend"
	"github.com/yndnr/walletmesh-go/pkg/domain"
)

var fastKDF = &KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newContext(t *testing.T, mutate ...func(*Options)) *Context {
	t.Helper()
	opts := Options{
		DataDir: t.TempDir(),
		Badger:  storage.BadgerConfig{GCInterval: "1h"},
		KDF:     fastKDF,
		Logger:  logger.Discard(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	wc, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { wc.Close(context.Background()) })
	return wc
}

func create(t *testing.T, wc *Context, name, walletType, config, creds string) {
	t.Helper()
	require.NoError(t, wc.CreateWallet(context.Background(), &CreateWalletRequest{
		PoolName:    "pool1",
		Name:        name,
		Type:        walletType,
		Config:      config,
		Credentials: creds,
	}))
}

func open(t *testing.T, wc *Context, name, creds string) domain.Handle {
	t.Helper()
	h, err := wc.OpenWallet(context.Background(), &OpenWalletRequest{Name: name, Credentials: creds})
	require.NoError(t, err)
	return h
}

func TestNew_RequiresDataDir(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_BuiltinTypes(t *testing.T) {
	wc := newContext(t)
	assert.Equal(t, []string{"default", "sqlite"}, wc.Types())
}

func TestContext_CloseIsIdempotent(t *testing.T) {
	wc, err := New(Options{DataDir: t.TempDir(), Logger: logger.Discard(), Badger: storage.BadgerConfig{GCInterval: "1h"}})
	require.NoError(t, err)

	ctx := context.Background()
	create(t, wc, "w", "", "", "")
	open(t, wc, "w", "")

	require.NoError(t, wc.Close(ctx))
	require.NoError(t, wc.Close(ctx))
}

func TestContext_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := Options{DataDir: dir, KDF: fastKDF, Logger: logger.Discard(), Badger: storage.BadgerConfig{GCInterval: "1h"}}

	wc, err := New(opts)
	require.NoError(t, err)
	create(t, wc, "persisted", "", `{"freshness_time":10}`, "")
	h := open(t, wc, "persisted", "")
	require.NoError(t, wc.Set(ctx, h, "k", []byte("v")))
	require.NoError(t, wc.Close(ctx))

	wc, err = New(opts)
	require.NoError(t, err)
	defer wc.Close(ctx)

	d, err := wc.Wallet(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, `{"freshness_time":10}`, d.Config)

	h = open(t, wc, "persisted", "")
	v, err := wc.Get(ctx, h, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v.Data)
}

// builtinTypes runs fn once per built-in storage type.
func builtinTypes(t *testing.T, fn func(t *testing.T, walletType string)) {
	for _, walletType := range []string{"default", "sqlite"} {
		t.Run(walletType, func(t *testing.T) { fn(t, walletType) })
	}
}

func TestLifecycleProperties(t *testing.T) {
	builtinTypes(t, func(t *testing.T, walletType string) {
		wc := newContext(t)
		ctx := context.Background()

		// create twice
		create(t, wc, "w", walletType, "", "")
		err := wc.CreateWallet(ctx, &CreateWalletRequest{PoolName: "pool1", Name: "w", Type: walletType})
		assert.ErrorIs(t, err, domain.ErrWalletAlreadyExists)

		// open never-created
		_, err = wc.OpenWallet(ctx, &OpenWalletRequest{Name: "never"})
		assert.ErrorIs(t, err, domain.ErrIO)

		// runtime config with unknown field
		_, err = wc.OpenWallet(ctx, &OpenWalletRequest{Name: "w", RuntimeConfig: `{"bogus":1}`})
		assert.ErrorIs(t, err, domain.ErrInvalidStructure)

		// two opens, two handles
		h1 := open(t, wc, "w", "")
		h2 := open(t, wc, "w", "")
		assert.NotEqual(t, h1, h2)

		// delete while open
		assert.ErrorIs(t, wc.DeleteWallet(ctx, "w", ""), domain.ErrIO)

		// close twice
		require.NoError(t, wc.CloseWallet(ctx, h1))
		assert.ErrorIs(t, wc.CloseWallet(ctx, h1), domain.ErrInvalidHandle)
		require.NoError(t, wc.CloseWallet(ctx, h2))

		// delete twice, then recreate
		require.NoError(t, wc.DeleteWallet(ctx, "w", ""))
		assert.ErrorIs(t, wc.DeleteWallet(ctx, "w", ""), domain.ErrIO)
		create(t, wc, "w", walletType, "", "")
	})
}

func TestCloseWallet_FreshContext(t *testing.T) {
	wc := newContext(t)
	assert.ErrorIs(t, wc.CloseWallet(context.Background(), 1), domain.ErrInvalidHandle)
}

func TestRecordRoundTrip(t *testing.T) {
	builtinTypes(t, func(t *testing.T, walletType string) {
		wc := newContext(t)
		ctx := context.Background()

		create(t, wc, "w", walletType, "", "")
		h := open(t, wc, "w", "")

		require.NoError(t, wc.Set(ctx, h, "cred::b", []byte("B")))
		require.NoError(t, wc.Set(ctx, h, "cred::a", []byte("A")))
		require.NoError(t, wc.Set(ctx, h, "other", []byte{0, 1, 2}))

		v, err := wc.Get(ctx, h, "other")
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2}, v.Data)

		recs, err := wc.List(ctx, h, "cred::")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "cred::a", recs[0].Key)
		assert.Equal(t, []byte("A"), recs[0].Value)
		assert.Equal(t, "cred::b", recs[1].Key)

		require.NoError(t, wc.SetSequenceNumber(ctx, h, "nonexistent-key", 1))
		key, err := wc.KeyBySequenceNumber(ctx, h, 1)
		require.NoError(t, err)
		assert.Equal(t, "nonexistent-key", key)

		_, err = wc.Get(ctx, h, "missing")
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
	})
}

func TestFreshness(t *testing.T) {
	builtinTypes(t, func(t *testing.T, walletType string) {
		c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		wc := newContext(t, func(o *Options) { o.Clock = c.Now })
		ctx := context.Background()

		create(t, wc, "w", walletType, `{"freshness_time":60}`, "")
		h := open(t, wc, "w", "")
		require.NoError(t, wc.Set(ctx, h, "k", []byte("v")))

		c.Advance(30 * time.Second)
		_, err := wc.GetIfFresh(ctx, h, "k")
		require.NoError(t, err)

		c.Advance(time.Minute)
		_, err = wc.GetIfFresh(ctx, h, "k")
		assert.ErrorIs(t, err, domain.ErrItemNotFound, "stale on GetIfFresh")
		_, err = wc.Get(ctx, h, "k")
		assert.NoError(t, err, "plain get ignores freshness")
	})
}

func TestNativeEncryption(t *testing.T) {
	wc := newContext(t)
	ctx := context.Background()

	create(t, wc, "secret", "", "", `{"key":"correct horse"}`)

	_, err := wc.OpenWallet(ctx, &OpenWalletRequest{Name: "secret", Credentials: `{"key":"wrong"}`})
	assert.ErrorIs(t, err, domain.ErrAccessFailed)
	_, err = wc.OpenWallet(ctx, &OpenWalletRequest{Name: "secret"})
	assert.ErrorIs(t, err, domain.ErrAccessFailed)

	h := open(t, wc, "secret", `{"key":"correct horse"}`)
	require.NoError(t, wc.Set(ctx, h, "k", []byte("sealed")))
	v, err := wc.Get(ctx, h, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), v.Data)
	require.NoError(t, wc.CloseWallet(ctx, h))

	assert.ErrorIs(t, wc.DeleteWallet(ctx, "secret", `{"key":"wrong"}`), domain.ErrAccessFailed)
	require.NoError(t, wc.DeleteWallet(ctx, "secret", `{"key":"correct horse"}`))
}

func TestPluginRegistration(t *testing.T) {
	wc := newContext(t)

	t.Run("missing entry points in order", func(t *testing.T) {
		clearers := []func(*backend.Funcs){
			func(f *backend.Funcs) { f.Open = nil },
			func(f *backend.Funcs) { f.Close = nil },
			func(f *backend.Funcs) { f.Delete = nil },
			func(f *backend.Funcs) { f.Set = nil },
			func(f *backend.Funcs) { f.Get = nil },
			func(f *backend.Funcs) { f.GetIfFresh = nil },
			func(f *backend.Funcs) { f.List = nil },
			func(f *backend.Funcs) { f.ReleaseValue = nil },
			func(f *backend.Funcs) { f.ReleaseSearch = nil },
		}
		for i := range clearers {
			pos := 4 + i
			funcs := memory.New().Funcs()
			// every later entry point is also missing; the earliest wins
			for _, drop := range clearers[i:] {
				drop(funcs)
			}
			err := wc.RegisterType("partial", funcs, false)
			assert.ErrorIs(t, err, domain.InvalidParam(pos), "position %d", pos)
			assert.Equal(t, pos, domain.GetPosition(err))
		}
		assert.NotContains(t, wc.Types(), "partial")
	})

	t.Run("duplicate regardless of override", func(t *testing.T) {
		p := memory.New()
		require.NoError(t, wc.RegisterType(memory.TypeName, p.Funcs(), false))
		assert.ErrorIs(t, wc.RegisterType(memory.TypeName, p.Funcs(), false), domain.ErrTypeAlreadyRegistered)
		assert.ErrorIs(t, wc.RegisterType(memory.TypeName, p.Funcs(), true), domain.ErrTypeAlreadyRegistered)
		assert.ErrorIs(t, wc.RegisterType("default", p.Funcs(), true), domain.ErrTypeAlreadyRegistered)
	})

	t.Run("positional arguments", func(t *testing.T) {
		assert.ErrorIs(t, wc.RegisterType("", memory.New().Funcs(), false), domain.InvalidParam(2))
		assert.ErrorIs(t, wc.RegisterType("nil", nil, false), domain.InvalidParam(3))
	})
}

func TestPluginReleasesEverything(t *testing.T) {
	wc := newContext(t)
	ctx := context.Background()

	p := memory.New()
	require.NoError(t, wc.RegisterType(memory.TypeName, p.Funcs(), false))
	create(t, wc, "mem", memory.TypeName, `{"freshness_time":3600}`, "")
	h := open(t, wc, "mem", "")

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, wc.Set(ctx, h, k, []byte(k)))
	}
	for _, k := range []string{"a", "b", "c"} {
		_, err := wc.Get(ctx, h, k)
		require.NoError(t, err)
		_, err = wc.GetIfFresh(ctx, h, k)
		require.NoError(t, err)
	}
	recs, err := wc.List(ctx, h, "")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	assert.Zero(t, p.OutstandingValues())
	assert.Zero(t, p.OutstandingSearches())

	require.NoError(t, wc.CloseWallet(ctx, h))
	require.NoError(t, wc.DeleteWallet(ctx, "mem", ""))
	assert.Empty(t, p.Wallets())
}

func TestConcurrentOpenClose(t *testing.T) {
	wc := newContext(t)
	ctx := context.Background()
	create(t, wc, "shared", "", "", "")

	const workers = 8
	var wg sync.WaitGroup
	handles := make(chan domain.Handle, workers*4)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				h, err := wc.OpenWallet(ctx, &OpenWalletRequest{Name: "shared"})
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, wc.Set(ctx, h, "k", []byte("v")))
				handles <- h
				assert.NoError(t, wc.CloseWallet(ctx, h))
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[domain.Handle]bool)
	for h := range handles {
		assert.False(t, seen[h], "handle %d issued twice", h)
		seen[h] = true
	}
	assert.Len(t, seen, workers*4)
	assert.Zero(t, wc.OpenHandles())
	require.NoError(t, wc.DeleteWallet(ctx, "shared", ""))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	wc := newContext(t, func(o *Options) { o.Registerer = reg })
	ctx := context.Background()

	create(t, wc, "w", "", "", "")
	h := open(t, wc, "w", "")

	n, err := testutil.GatherAndCount(reg, "walletmesh_handles_open")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, wc.CloseWallet(ctx, h))
	n, err = testutil.GatherAndCount(reg, "walletmesh_operations_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3, "create, open and close observed")
}
