package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archivist",
			Subsystem: "repository",
			Name:      "operations_total",
			Help:      "Number of archiver repository operations by outcome.",
		}, []string{"op", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archivist",
			Subsystem: "repository",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in one archiver repository operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
	historySendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archivist",
			Subsystem: "repository",
			Name:      "history_send_errors_total",
			Help:      "Number of history events a sink failed to accept.",
		}, []string{"sink"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{operations, operationDuration, historySendErrors}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registerer: keep the existing one
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register succeeds.

// ObserveOperation records one operation that began at start. A nil err
// counts as "ok".
func ObserveOperation(op string, start time.Time, err error) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func IncHistorySendError(sink string) {
	if regOK.Load() {
		historySendErrors.WithLabelValues(sink).Inc()
	}
}
