package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects resolution statistics in a private registry so several
// engines can coexist in one process
type Metrics struct {
	registry *prometheus.Registry

	resolutionsTotal *prometheus.CounterVec
	warningsTotal    *prometheus.CounterVec
	definitions      *prometheus.GaugeVec
	duration         prometheus.Histogram
}

// NewMetrics creates and registers the engine metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrules_resolutions_total",
				Help: "Number of module resolutions by module and result.",
			},
			[]string{"module", "result"},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrules_configuration_warnings_total",
				Help: "Number of configuration warnings by module.",
			},
			[]string{"module"},
		),
		definitions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modrules_definition_value",
				Help: "Value of each version-gated definition in the last resolution.",
			},
			[]string{"module", "definition"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modrules_resolve_all_duration_seconds",
				Help:    "Time taken to resolve a full descriptor set.",
				Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
			},
		),
	}

	m.registry.MustRegister(m.resolutionsTotal, m.warningsTotal, m.definitions, m.duration)
	return m
}

// Gatherer exposes the registry for scraping or inspection
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, for
// node-exporter style textfile collection
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func (m *Metrics) observe(report *Report) {
	m.duration.Observe(report.Duration.Seconds())

	for _, res := range report.Results {
		if res.Err != nil {
			m.resolutionsTotal.WithLabelValues(res.Module, "failure").Inc()
			continue
		}
		m.resolutionsTotal.WithLabelValues(res.Module, "success").Inc()
		if n := len(res.Config.Warnings); n > 0 {
			m.warningsTotal.WithLabelValues(res.Module).Add(float64(n))
		}
		for name, value := range res.Config.Definitions {
			v := 0.0
			if value == "1" {
				v = 1
			}
			m.definitions.WithLabelValues(res.Module, name).Set(v)
		}
	}
}
