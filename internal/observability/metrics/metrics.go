package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "acc_reconcile_"

	resultSuccess = "success"
	resultError   = "error"
)

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

// Metrics bundles the reconciliation collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	stageTotal   *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec

	inputRows        *prometheus.GaugeVec
	periods          prometheus.Gauge
	changedGroups    prometheus.Gauge
	unmatchedPeriods prometheus.Gauge
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stage_total",
				Help: "Total pipeline stage executions by stage and result",
			},
			[]string{"stage", "result"},
		),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_latency_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "result"},
		),
		inputRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "input_rows",
				Help: "Rows handed to the core by source",
			},
			[]string{"source"},
		),
		periods: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "price_periods",
			Help: "Price periods produced by the last run",
		}),
		changedGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "changed_groups",
			Help: "Contract/article groups with more than one price period",
		}),
		unmatchedPeriods: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "unmatched_periods",
			Help: "Price periods without any measurement record",
		}),
	}
	m.registry.MustRegister(
		m.stageTotal,
		m.stageLatency,
		m.inputRows,
		m.periods,
		m.changedGroups,
		m.unmatchedPeriods,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records stage latency and result.
func (m *Metrics) ObserveStage(stage, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	m.stageTotal.WithLabelValues(stage, result).Inc()
	m.stageLatency.WithLabelValues(stage, result).Observe(duration.Seconds())
}

// SetInputRows records how many rows a source produced.
func (m *Metrics) SetInputRows(source string, rows int) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.inputRows.WithLabelValues(source).Set(float64(rows))
}

// SetOutcome records the size of the last run's outputs.
func (m *Metrics) SetOutcome(periods, changedGroups, unmatchedPeriods int) {
	if m == nil {
		return
	}
	m.periods.Set(float64(periods))
	m.changedGroups.Set(float64(changedGroups))
	m.unmatchedPeriods.Set(float64(unmatchedPeriods))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
