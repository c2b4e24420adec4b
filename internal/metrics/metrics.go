// Package metrics exposes Prometheus counters for the watcher's cycles.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "hotpool"

// Candidate stages.
const (
	StageShortlisted = "shortlisted"
	StageCoolingDown = "cooling_down"
	StageSuppressed  = "suppressed"
	StageApproved    = "approved"
)

// Recorder owns a private registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cycleFailures   prometheus.Counter
	poolsSeen       prometheus.Counter
	candidates      *prometheus.CounterVec
	alertsSent      *prometheus.CounterVec
	sendFailures    prometheus.Counter
	marketFallbacks prometheus.Counter
	ledgerSize      prometheus.Gauge
	cycleDuration   prometheus.Histogram
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Polling cycles started.",
		}),
		cycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycle_failures_total",
			Help: "Cycles that ended without candidates because the pool source failed.",
		}),
		poolsSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pools_seen_total",
			Help: "Pool records read from the pool source.",
		}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_total",
			Help: "Pools reaching each evaluation stage.",
		}, []string{"stage"}),
		alertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_sent_total",
			Help: "Alerts delivered, by tier.",
		}, []string{"tier"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_send_failures_total",
			Help: "Alert deliveries that failed.",
		}),
		marketFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "market_fallbacks_total",
			Help: "Market snapshot lookups that fell back to neutral values.",
		}),
		ledgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cooldown_ledger_entries",
			Help: "Pools currently tracked by the cooldown ledger.",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of a polling cycle including pacing delays.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}
}

// CycleStarted counts a cycle that began.
func (r *Recorder) CycleStarted() {
	if r == nil {
		return
	}
	r.cycles.Inc()
}

// CycleFailed 记录一次因池数据源失败而没有候选的周期。
func (r *Recorder) CycleFailed() {
	if r == nil {
		return
	}
	r.cycleFailures.Inc()
}

// CycleFinished observes the wall time of a finished cycle.
func (r *Recorder) CycleFinished(d time.Duration) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
}

// PoolsSeen adds n pool records read this cycle.
func (r *Recorder) PoolsSeen(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.poolsSeen.Add(float64(n))
}

// Candidate counts one pool reaching stage.
func (r *Recorder) Candidate(stage string) {
	if r == nil {
		return
	}
	r.candidates.WithLabelValues(stage).Inc()
}

// AlertSent 按等级记录一次成功送达的告警。
func (r *Recorder) AlertSent(tier string) {
	if r == nil {
		return
	}
	r.alertsSent.WithLabelValues(tier).Inc()
}

// SendFailed counts a failed delivery.
func (r *Recorder) SendFailed() {
	if r == nil {
		return
	}
	r.sendFailures.Inc()
}

// MarketFallback 记录一次市场快照回退到中性值。
func (r *Recorder) MarketFallback() {
	if r == nil {
		return
	}
	r.marketFallbacks.Inc()
}

// LedgerSize sets the number of pools held by the cooldown ledger.
func (r *Recorder) LedgerSize(n int) {
	if r == nil {
		return
	}
	r.ledgerSize.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
