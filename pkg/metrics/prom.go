// Package metrics exposes Prometheus instrumentation for the resource
// engine and an optional standalone metrics server.
package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flash_requests_total",
			Help: "Total number of resource requests by resource, method and status",
		},
		[]string{"resource", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flash_request_duration_seconds",
			Help:    "Duration of resource request handling",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "method"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flash_cache_hits_total",
			Help: "Response cache hits and misses by resource",
		},
		[]string{"resource", "outcome"},
	)
)

type ServerOpts struct {
	Addr              string
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5 seconds
	ReadHeaderTimeout time.Duration // defaults to 3 seconds
}

func defaultServerOpts() ServerOpts {
	return ServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartServer starts a Prometheus metrics server with the given options.
// The server shuts down gracefully when the provided context is canceled.
func StartServer(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, opts *ServerOpts) {
	effective := defaultServerOpts()
	if opts != nil {
		effective.Addr = cmp.Or(opts.Addr, effective.Addr)
		effective.Path = cmp.Or(opts.Path, effective.Path)
		effective.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effective.ShutdownTimeout)
		effective.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effective.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(effective.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effective.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effective.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effective.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), effective.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", zap.Error(err))
		}
		select {
		case <-serverClosed:
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
