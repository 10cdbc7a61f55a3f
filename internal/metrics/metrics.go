// Package metrics publishes pipeline run outcomes: per-run gauges pushed
// to a Prometheus Pushgateway, plus a registry scraped by the status
// server in schedule mode.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/unosaa/datapipe/internal/domain"
)

// pushJob is the Pushgateway job name for all pipeline runs.
const pushJob = "datapipe"

// Metrics holds the pipeline metrics.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	LastSuccess *prometheus.GaugeVec

	registry *prometheus.Registry
	pushURL  string
}

// New creates a metrics instance. pushURL may be empty, which disables
// the Pushgateway publication and keeps only the scrape registry.
func New(pushURL string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushURL:  pushURL,
	}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datapipe",
			Name:      "runs_total",
			Help:      "Completed runs by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datapipe",
			Name:      "run_duration_seconds",
			Help:      "Run duration by command",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"command"},
	)

	m.LastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "datapipe",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run by command",
		},
		[]string{"command"},
	)

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccess,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the scrape registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PushRun records a finished run in the registry and, when a Pushgateway
// is configured, pushes its outcome there grouped by command and target.
func (m *Metrics) PushRun(run *domain.Run) error {
	command := string(run.Command)
	outcome := "success"
	if run.Status != domain.RunSucceeded {
		outcome = "failure"
	}

	m.RunsTotal.WithLabelValues(command, outcome).Inc()
	m.RunDuration.WithLabelValues(command).Observe(run.Duration().Seconds())
	if run.Status == domain.RunSucceeded {
		m.LastSuccess.WithLabelValues(command).SetToCurrentTime()
	}

	if m.pushURL == "" {
		return nil
	}
	return m.pushRun(run)
}

func (m *Metrics) pushRun(run *domain.Run) error {
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datapipe_last_run_duration_seconds",
		Help: "Wall-clock duration of the last run",
	})
	duration.Set(run.Duration().Seconds())

	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datapipe_last_run_success",
		Help: "1 when the last run succeeded, 0 otherwise",
	})
	if run.Status == domain.RunSucceeded {
		success.Set(1)
	}

	exitCode := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datapipe_last_run_exit_code",
		Help: "Exit code of the last run",
	})
	exitCode.Set(float64(run.ExitCode))

	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datapipe_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})
	if run.FinishedAt != nil {
		finished.Set(float64(run.FinishedAt.Unix()))
	} else {
		finished.Set(float64(time.Now().Unix()))
	}

	return push.New(m.pushURL, pushJob).
		Collector(duration).
		Collector(success).
		Collector(exitCode).
		Collector(finished).
		Grouping("command", string(run.Command)).
		Grouping("target", run.Target).
		Push()
}
