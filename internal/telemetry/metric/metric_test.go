package metric

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/walletmesh-go/pkg/domain"
)

func TestNewRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	r.WalletsCreated.Inc()
	r.HandlesAllocated.Add(2)

	if got := testutil.ToFloat64(r.WalletsCreated); got != 1 {
		t.Errorf("wallets created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.HandlesAllocated); got != 2 {
		t.Errorf("handles allocated = %v, want 2", got)
	}

	// A second registry on the same registerer shares the metrics.
	r2, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("second NewRegistry() error: %v", err)
	}
	r2.WalletsCreated.Inc()
	if got := testutil.ToFloat64(r.WalletsCreated); got != 2 {
		t.Errorf("shared wallets created = %v, want 2", got)
	}
}

func TestNewRegistry_Unregistered(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Observe("open", time.Now(), nil)
	if got := testutil.ToFloat64(r.Operations.WithLabelValues("open", ResultOK)); got != 1 {
		t.Errorf("operations = %v, want 1", got)
	}
}

func TestRegistry_Observe(t *testing.T) {
	r, _ := NewRegistry(prometheus.NewRegistry())

	r.Observe("create", time.Now(), nil)
	r.Observe("create", time.Now(), domain.ErrWalletAlreadyExists)
	r.Observe("create", time.Now(), errors.New("boom"))

	tests := []struct {
		result string
		want   float64
	}{
		{ResultOK, 1},
		{"wm-wlt-4090", 1},
		{ResultError, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(r.Operations.WithLabelValues("create", tt.result)); got != tt.want {
			t.Errorf("operations{result=%q} = %v, want %v", tt.result, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(r.OperationDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestResult(t *testing.T) {
	if got := Result(domain.InvalidParam(3)); got != "wm-arg-1001" {
		t.Errorf("Result() = %q", got)
	}
}

type fakeSource struct{ handles, types, reserved int }

func (f fakeSource) OpenHandles() int     { return f.handles }
func (f fakeSource) RegisteredTypes() int { return f.types }
func (f fakeSource) ReservedNames() int   { return f.reserved }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeSource{handles: 3, types: 2, reserved: 1})

	expected := `
# HELP walletmesh_handles_open Wallet handles currently open
# TYPE walletmesh_handles_open gauge
walletmesh_handles_open 3
# HELP walletmesh_types_registered Wallet types currently registered
# TYPE walletmesh_types_registered gauge
walletmesh_types_registered 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"walletmesh_handles_open", "walletmesh_types_registered"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Errorf("collected %d metrics, want 3", n)
	}
}
