// Package metrics exposes the Prometheus counters emitted by
// the receiver and sender. A nil *Registry is valid and every method on
// it is a no-op, so callers never need to branch on whether metrics are
// enabled.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the Prometheus collectors for one process (receiverd or
// senderd). Both binaries register the same set; an instance only
// increments the counters its own component touches.
type Registry struct {
	reg *prometheus.Registry

	connectionsTotal      *prometheus.CounterVec
	bytesReceivedTotal    prometheus.Counter
	rateLimitRejections   prometheus.Counter
	retentionFilesDeleted *prometheus.CounterVec
	schedulerPassesTotal  prometheus.Counter
	schedulerBackupsTotal *prometheus.CounterVec
}

// New constructs a Registry backed by a fresh prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	return &Registry{
		reg: reg,
		connectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "receiver_connections_total",
				Help: "Total connections handled by the receiver, by terminal result.",
			},
			[]string{"result"},
		),
		bytesReceivedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "receiver_bytes_received_total",
				Help: "Total payload bytes received across all connections.",
			},
		),
		rateLimitRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "receiver_rate_limit_rejections_total",
				Help: "Total connections rejected for exceeding the per-peer rate limit.",
			},
		),
		retentionFilesDeleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "retention_files_deleted_total",
				Help: "Total backup files deleted by the retention pass, by cadence.",
			},
			[]string{"cadence"},
		),
		schedulerPassesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_passes_total",
				Help: "Total scheduler polling passes completed.",
			},
		),
		schedulerBackupsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_backups_total",
				Help: "Total upload attempts made by the scheduler, by service, cadence, and result.",
			},
			[]string{"service", "cadence", "result"},
		),
	}
}

// ObserveConnection records the terminal result of one receiver
// connection (e.g. "success", "bad_data", "rate_limited", "too_large",
// "timeout", "error").
func (r *Registry) ObserveConnection(result string) {
	if r == nil {
		return
	}
	r.connectionsTotal.WithLabelValues(result).Inc()
}

// AddBytesReceived adds n to the running total of payload bytes received.
func (r *Registry) AddBytesReceived(n uint64) {
	if r == nil {
		return
	}
	r.bytesReceivedTotal.Add(float64(n))
}

// ObserveRateLimitRejection records one connection rejected for
// exceeding the per-peer rate limit.
func (r *Registry) ObserveRateLimitRejection() {
	if r == nil {
		return
	}
	r.rateLimitRejections.Inc()
}

// AddRetentionFilesDeleted adds n to the count of files the retention
// pass removed for cadence.
func (r *Registry) AddRetentionFilesDeleted(cadence string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.retentionFilesDeleted.WithLabelValues(cadence).Add(float64(n))
}

// ObserveSchedulerPass records one completed scheduler polling pass.
func (r *Registry) ObserveSchedulerPass() {
	if r == nil {
		return
	}
	r.schedulerPassesTotal.Inc()
}

// ObserveSchedulerBackup records one scheduler-initiated upload attempt
// for (service, cadence), with its terminal result.
func (r *Registry) ObserveSchedulerBackup(service, cadence, result string) {
	if r == nil {
		return
	}
	r.schedulerBackupsTotal.WithLabelValues(service, cadence, result).Inc()
}

// Server serves the registry's metrics over HTTP.
type Server struct {
	httpServer *http.Server
}

// NewServer constructs a metrics HTTP server bound to addr, exposing
// reg's collectors at /metrics. reg's registry holds only this package's
// counters, not the Go/process collectors. A nil reg serves the
// Prometheus default global registry instead of panicking.
func NewServer(addr string, reg *Registry) *Server {
	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg.reg, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe blocks serving metrics until the server is shut down.
// A closed server returns nil rather than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
