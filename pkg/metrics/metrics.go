// Package metrics exposes the Prometheus metrics of the SDK.
// All metrics are defined in their respective packages (client, cache,
// session, pagination) via promauto; this package serves them and documents
// what is available.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer every package's metrics are added to.
var Registry = prometheus.DefaultRegisterer

// Handler serves /metrics from the default gatherer and a plain /health probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - mstr_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - mstr_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - mstr_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, auth)
//   - mstr_logins_total{source} (Counter): Sessions obtained by login or from the session store
//
// Retry Metrics (pkg/client):
//   - mstr_retries_total{error_class} (Counter): Retry attempts by error class
//   - mstr_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mstr_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Session Metrics (pkg/session):
//   - mstr_session_lookups_total{result} (Counter): Store lookups (hit, miss, expired)
//   - mstr_session_saves_total (Counter): Sessions written
//   - mstr_session_ttl_seconds (Gauge): Remaining lifetime of the last saved session
//
// Cache Metrics (pkg/cache):
//   - mstr_cache_hits_total{kind} (Counter): Hits served fresh or after revalidation
//   - mstr_cache_misses_total (Counter): Misses
//   - mstr_cache_written_bytes_total (Counter): Bytes written
//   - mstr_cache_conditional_requests_total (Counter): Revalidation requests
//   - mstr_cache_not_modified_total (Counter): 304 Not Modified responses
//   - mstr_cache_errors_total{operation} (Counter): Redis errors
//
// Pagination Metrics (pkg/pagination):
//   - mstr_pagination_chunks_total{mode, status} (Counter): Chunk fetches
//   - mstr_pagination_rows_total (Counter): Rows materialized
//   - mstr_pagination_duration_seconds{mode} (Histogram): Materialization duration
//
// Example Prometheus Queries:
//
//   # Chunk failure ratio
//   sum(rate(mstr_pagination_chunks_total{status="error"}[5m])) /
//   sum(rate(mstr_pagination_chunks_total[5m]))
//
//   # P95 materialization latency in parallel mode
//   histogram_quantile(0.95, rate(mstr_pagination_duration_seconds_bucket{mode="parallel"}[5m]))
//
//   # Session reuse rate
//   rate(mstr_logins_total{source="store"}[5m]) / rate(mstr_logins_total[5m])
