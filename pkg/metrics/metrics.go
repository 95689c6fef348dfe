// Package metrics exposes run metrics in Prometheus format.
package metrics

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/ormasoftchile/qaflow/pkg/engine"
)

// Collector captures metrics for qaflow runs.
type Collector struct {
	registry     *prometheus.Registry
	testsTotal   *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	sessionErrs  prometheus.Counter
	testDuration *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
	compiled     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		testsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "qaflow_tests_total", Help: "Test case executions by outcome"},
			[]string{"status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "qaflow_steps_total", Help: "Action executions by kind and outcome"},
			[]string{"kind", "status"},
		),
		sessionErrs: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "qaflow_session_errors_total", Help: "Executions ended by a browser session error"},
		),
		testDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qaflow_test_duration_seconds",
				Help:    "Test case duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"test", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qaflow_step_duration_seconds",
				Help:    "Action duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "status"},
		),
		compiled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "qaflow_compilations_total", Help: "Compilations by mode and outcome"},
			[]string{"mode", "status"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "qaflow_dropped_candidates_total", Help: "Candidates dropped by lossy compilation"},
			[]string{"reason"},
		),
	}

	registry.MustRegister(c.testsTotal, c.stepsTotal, c.sessionErrs, c.testDuration, c.stepDuration, c.compiled, c.dropped)
	return c
}

// ObserveTest records a test outcome.
func (c *Collector) ObserveTest(name, status string, duration time.Duration) {
	c.testsTotal.WithLabelValues(status).Inc()
	c.testDuration.WithLabelValues(name, status).Observe(duration.Seconds())
}

// ObserveStep records a step outcome.
func (c *Collector) ObserveStep(kind, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(kind, status).Inc()
	if status != string(engine.StepSkipped) {
		c.stepDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
	}
}

// ObserveResult records a test and all of its steps.
func (c *Collector) ObserveResult(res *engine.ExecutionResult) {
	c.ObserveTest(res.TestCaseName, string(res.OverallStatus), res.Duration())
	for _, s := range res.Steps {
		c.ObserveStep(string(s.Kind), string(s.Status), time.Duration(s.ElapsedMs)*time.Millisecond)
	}
}

// ObserveSessionError counts an execution lost to infrastructure.
func (c *Collector) ObserveSessionError() {
	c.sessionErrs.Inc()
}

// ObserveCompile records a compilation and the reasons of its drops.
func (c *Collector) ObserveCompile(mode, status string, dropReasons []string) {
	c.compiled.WithLabelValues(mode, status).Inc()
	for _, r := range dropReasons {
		c.dropped.WithLabelValues(r).Inc()
	}
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Encode renders all metrics in Prometheus text format.
func (c *Collector) Encode() ([]byte, error) {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
