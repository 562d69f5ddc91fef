// Package metrics exposes trading session counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	Candles        *prometheus.CounterVec // labels: asset
	Signals        *prometheus.CounterVec // labels: asset, direction
	Denies         *prometheus.CounterVec // labels: asset, reason
	Orders         *prometheus.CounterVec // labels: asset, mode
	SubmitErrors   *prometheus.CounterVec // labels: asset
	Outcomes       *prometheus.CounterVec // labels: asset, result
	Profit         *prometheus.GaugeVec   // labels: asset
	WinRate        *prometheus.GaugeVec   // labels: asset
	DailyLoss      *prometheus.GaugeVec   // labels: asset
	State          *prometheus.GaugeVec   // labels: asset
	SettlementWait prometheus.Histogram
	FanoutDrops    *prometheus.CounterVec // labels: subscriber
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		Candles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_candles_total",
			Help: "Closed candles ingested",
		}, []string{"asset"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_total",
			Help: "Signals evaluated by direction",
		}, []string{"asset", "direction"}),
		Denies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_denies_total",
			Help: "Trades denied by the risk manager",
		}, []string{"asset", "reason"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_orders_total",
			Help: "Orders accepted by the executor",
		}, []string{"asset", "mode"}),
		SubmitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_submit_errors_total",
			Help: "Orders the executor refused after all retries",
		}, []string{"asset"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_outcomes_total",
			Help: "Settled trades by result",
		}, []string{"asset", "result"}),
		Profit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_total_profit",
			Help: "Net profit over recorded outcomes",
		}, []string{"asset"}),
		WinRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_win_rate",
			Help: "wins / (wins + losses + draws)",
		}, []string{"asset"}),
		DailyLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_daily_loss",
			Help: "Losses accumulated today",
		}, []string{"asset"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_session_state",
			Help: "Controller state (0=idle 1=connected 2=warming_up 3=monitoring 4=evaluating 5=executing 6=stopped)",
		}, []string{"asset"}),
		SettlementWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_settlement_wait_seconds",
			Help:    "Wall time between submit and settlement",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 120, 300, 600, 1800},
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
	}

	m.reg.MustRegister(
		m.Candles,
		m.Signals,
		m.Denies,
		m.Orders,
		m.SubmitErrors,
		m.Outcomes,
		m.Profit,
		m.WinRate,
		m.DailyLoss,
		m.State,
		m.SettlementWait,
		m.FanoutDrops,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) CandleClosed(asset string) {
	if m == nil {
		return
	}
	m.Candles.WithLabelValues(asset).Inc()
}

func (m *Metrics) Signal(asset, direction string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(asset, direction).Inc()
}

func (m *Metrics) Denied(asset, reason string) {
	if m == nil {
		return
	}
	m.Denies.WithLabelValues(asset, reason).Inc()
}

func (m *Metrics) OrderPlaced(asset, mode string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(asset, mode).Inc()
}

func (m *Metrics) SubmitFailed(asset string) {
	if m == nil {
		return
	}
	m.SubmitErrors.WithLabelValues(asset).Inc()
}

// Outcome counts a result and refreshes the running totals.
func (m *Metrics) Outcome(asset, result string, wait time.Duration, profit, winRate, dailyLoss float64) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(asset, result).Inc()
	m.Profit.WithLabelValues(asset).Set(profit)
	m.WinRate.WithLabelValues(asset).Set(winRate)
	m.DailyLoss.WithLabelValues(asset).Set(dailyLoss)
	m.SettlementWait.Observe(wait.Seconds())
}

func (m *Metrics) SetDailyLoss(asset string, loss float64) {
	if m == nil {
		return
	}
	m.DailyLoss.WithLabelValues(asset).Set(loss)
}

func (m *Metrics) SetState(asset string, state int) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(asset).Set(float64(state))
}

// FanoutDrop matches feed.FanOut's OnDrop signature once bound to a name.
func (m *Metrics) FanoutDrop(subscriber string) {
	if m == nil {
		return
	}
	m.FanoutDrops.WithLabelValues(subscriber).Inc()
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *zap.Logger
}

func NewServer(addr string, m *Metrics, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", s.addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
