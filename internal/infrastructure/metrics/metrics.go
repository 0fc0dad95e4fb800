package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"income-screener/internal/domain"
)

// Recorder exports pipeline outcomes on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	symbolOutcomes *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRun        prometheus.Gauge
	lastSuccess    prometheus.Gauge
	picks          *prometheus.GaugeVec
	universe       *prometheus.GaugeVec
	alerts         *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		symbolOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_symbol_outcomes_total",
				Help: "Screened symbols by strategy and outcome",
			},
			[]string{"strategy", "outcome"}, // outcome: pick|no_contract|screened_out|insufficient_data|error
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_fetch_failures_total",
				Help: "Market data fetches that failed after retries",
			},
			[]string{"symbol"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_runs_total",
				Help: "Completed pipeline runs",
			},
			[]string{"status"}, // status: success|failure
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_last_run_timestamp",
			Help: "Unix timestamp of the last completed run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_last_run_successful",
			Help: "1 if the last run met the success ratio",
		}),
		picks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screener_picks",
				Help: "Picks produced by the last run",
			},
			[]string{"strategy"},
		),
		universe: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screener_universe_symbols",
				Help: "Symbols at each stage of the last run",
			},
			[]string{"stage"}, // stage: universe|screened|succeeded|failed|skipped
		),
		alerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screener_alerts",
				Help: "Alert deliveries in the last run",
			},
			[]string{"status"},
		),
	}
	r.registry.MustRegister(
		r.symbolOutcomes, r.fetchFailures, r.runs, r.runDuration,
		r.lastRun, r.lastSuccess, r.picks, r.universe, r.alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveSymbol(strategy domain.Strategy, outcome string) {
	r.symbolOutcomes.WithLabelValues(string(strategy), outcome).Inc()
}

func (r *Recorder) ObserveFetchFailure(symbol string) {
	r.fetchFailures.WithLabelValues(symbol).Inc()
}

func (r *Recorder) ObserveRun(s domain.RunSummary) {
	status := "failure"
	if s.Successful {
		status = "success"
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(s.Duration.Seconds())
	r.lastRun.Set(float64(s.StartedAt.Add(s.Duration).Unix()))

	for _, st := range []domain.Strategy{domain.StrategyCoveredCall, domain.StrategyCashSecuredPut} {
		r.picks.WithLabelValues(string(st)).Set(float64(s.PicksByType[st]))
	}
	r.universe.WithLabelValues("universe").Set(float64(s.Universe))
	r.universe.WithLabelValues("screened").Set(float64(s.Screened))
	r.universe.WithLabelValues("succeeded").Set(float64(s.Succeeded))
	r.universe.WithLabelValues("failed").Set(float64(s.Failed))
	r.universe.WithLabelValues("skipped").Set(float64(s.Skipped))
	r.alerts.WithLabelValues("sent").Set(float64(s.AlertsSent))
	r.alerts.WithLabelValues("failed").Set(float64(s.AlertsFailed))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
