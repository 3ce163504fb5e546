// Package metrics exposes Prometheus metrics and a health endpoint for
// the trading engine.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TicksTotal      prometheus.Counter
	SelectionsTotal prometheus.Counter
	CandidatesTotal prometheus.Counter
	OrdersTotal     *prometheus.CounterVec // labels: side, status
	ClosesTotal     *prometheus.CounterVec // labels: reason
	BrokerErrors    prometheus.Counter
	BrokerCallDur   *prometheus.HistogramVec // labels: call
	OpenPositions   prometheus.Gauge
	DailyPnL        prometheus.Gauge
	MarketState     prometheus.Gauge // 0=closed, 1=open
	EntriesHalted   prometheus.Gauge // 1 when the daily loss limit tripped
	DegradedMode    prometheus.Gauge // 1 when running without entries
}

// NewMetrics registers all engine metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the engine metrics with reg. Tests pass a
// private registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redarrow_ticks_total",
			Help: "Orchestrator ticks executed",
		}),
		SelectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redarrow_selections_total",
			Help: "Selection cycles run",
		}),
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redarrow_candidates_total",
			Help: "Scored candidates produced by the selector",
		}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redarrow_orders_total",
			Help: "Orders submitted to the broker",
		}, []string{"side", "status"}),
		ClosesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redarrow_closes_total",
			Help: "Position closes by exit reason",
		}, []string{"reason"}),
		BrokerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redarrow_broker_errors_total",
			Help: "Failed broker calls",
		}),
		BrokerCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redarrow_broker_call_duration_seconds",
			Help:    "Broker call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redarrow_open_positions",
			Help: "Currently open positions",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redarrow_daily_pnl_krw",
			Help: "Realized PnL for the current session in KRW",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redarrow_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		EntriesHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redarrow_entries_halted",
			Help: "1 when the daily loss limit has halted new entries",
		}),
		DegradedMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redarrow_degraded_mode",
			Help: "1 when connectivity failures disabled new entries",
		}),
	}

	reg.MustRegister(
		m.TicksTotal, m.SelectionsTotal, m.CandidatesTotal,
		m.OrdersTotal, m.ClosesTotal,
		m.BrokerErrors, m.BrokerCallDur,
		m.OpenPositions, m.DailyPnL,
		m.MarketState, m.EntriesHalted, m.DegradedMode,
	)
	return m
}

// ObserveBrokerCall times one broker round-trip.
func (m *Metrics) ObserveBrokerCall(call string, start time.Time) {
	m.BrokerCallDur.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// HealthStatus tracks component liveness for /healthz.
type HealthStatus struct {
	mu              sync.RWMutex
	brokerConnected bool
	journalOK       bool
	lastTick        time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{journalOK: true}
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.brokerConnected = v
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.journalOK = v
}

func (h *HealthStatus) SetLastTick(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = t
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	status := struct {
		BrokerConnected bool   `json:"broker_connected"`
		JournalOK       bool   `json:"journal_ok"`
		LastTick        string `json:"last_tick,omitempty"`
	}{
		BrokerConnected: h.brokerConnected,
		JournalOK:       h.journalOK,
	}
	if !h.lastTick.IsZero() {
		status.LastTick = h.lastTick.UTC().Format(time.RFC3339)
	}
	healthy := h.journalOK
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("[metrics] shutdown error: %v", err)
	}
}
