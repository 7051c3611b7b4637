package metric

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/walletmesh-go/pkg/domain"
)

const namespace = "walletmesh"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Registry holds all application metrics.
type Registry struct {
	// Lifecycle metrics
	WalletsCreated   prometheus.Counter
	WalletsDeleted   prometheus.Counter
	HandlesAllocated prometheus.Counter
	HandlesRetired   prometheus.Counter

	// Operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewRegistry creates the metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewRegistry(reg prometheus.Registerer) (*Registry, error) {
	r := &Registry{
		WalletsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_created_total",
			Help:      "Total wallets created",
		}),
		WalletsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_deleted_total",
			Help:      "Total wallets deleted",
		}),
		HandlesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_allocated_total",
			Help:      "Total wallet handles allocated by open",
		}),
		HandlesRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_retired_total",
			Help:      "Total wallet handles retired by close",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Wallet operations by name and result",
		}, []string{"op", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wallet operation latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
	}

	if reg == nil {
		return r, nil
	}

	var err error
	if r.WalletsCreated, err = register(reg, r.WalletsCreated); err != nil {
		return nil, err
	}
	if r.WalletsDeleted, err = register(reg, r.WalletsDeleted); err != nil {
		return nil, err
	}
	if r.HandlesAllocated, err = register(reg, r.HandlesAllocated); err != nil {
		return nil, err
	}
	if r.HandlesRetired, err = register(reg, r.HandlesRetired); err != nil {
		return nil, err
	}
	if r.Operations, err = register(reg, r.Operations); err != nil {
		return nil, err
	}
	if r.OperationDuration, err = register(reg, r.OperationDuration); err != nil {
		return nil, err
	}
	return r, nil
}

// register registers c on reg, returning the already registered collector
// when an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one operation outcome and its latency.
func (r *Registry) Observe(op string, start time.Time, err error) {
	r.Operations.WithLabelValues(op, Result(err)).Inc()
	r.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Result maps an operation error to a result label: "ok", the lowercased
// domain error code, or "error".
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	if code := domain.GetErrorCode(err); code != "" {
		return strings.ToLower(code)
	}
	return ResultError
}
