// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser/session"
)

const namespace = "uiharness"

// Metrics groups the harness collectors. A nil *Metrics records nothing, so
// components can take one unconditionally.
type Metrics struct {
	liveContexts   prometheus.Gauge
	launches       *prometheus.CounterVec
	actionAttempts *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
	waitTimeouts   *prometheus.CounterVec
}

var _ session.LifecycleRecorder = (*Metrics)(nil)

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		liveContexts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_contexts",
			Help:      "Execution contexts currently open.",
		}),
		launches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_launches_total",
			Help:      "Execution context constructions by result.",
		}, []string{"result"}),
		actionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_attempts_total",
			Help:      "Individual interaction attempts, retries included.",
		}, []string{"action"}),
		actionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Interactions that failed after their last attempt.",
		}, []string{"action"}),
		waitTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Synchronization waits that timed out, by condition.",
		}, []string{"condition"}),
	}
}

// RecordLaunch counts a context construction and, on success, a live context.
func (m *Metrics) RecordLaunch(result string) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(result).Inc()
	if result == session.LaunchOK {
		m.liveContexts.Inc()
	}
}

// RecordClose counts a torn down context.
func (m *Metrics) RecordClose() {
	if m == nil {
		return
	}
	m.liveContexts.Dec()
}

// ActionAttempted counts one attempt of action.
func (m *Metrics) ActionAttempted(action string) {
	if m == nil {
		return
	}
	m.actionAttempts.WithLabelValues(action).Inc()
}

// ActionFailed counts an action that exhausted its attempts.
func (m *Metrics) ActionFailed(action string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action).Inc()
}

// WaitTimedOut counts a wait timeout.
func (m *Metrics) WaitTimedOut(condition string) {
	if m == nil {
		return
	}
	m.waitTimeouts.WithLabelValues(condition).Inc()
}

// ServeMetrics exposes g on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics.", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
