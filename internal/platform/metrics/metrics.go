package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	auditAppendsTotal        *prometheus.CounterVec
	chainVerifyRunsTotal     *prometheus.CounterVec
	chainVerifyChecked       prometheus.Gauge
	chainVerifyValid         prometheus.Gauge
	analysisRunsTotal        *prometheus.CounterVec
	analysisFindingsTotal    prometheus.Counter
	analysisLastFindingCount prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		auditAppendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certiview",
				Subsystem: "audit",
				Name:      "appends_total",
				Help:      "Total audit chain appends partitioned by result.",
			},
			[]string{"result"},
		),
		chainVerifyRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certiview",
				Subsystem: "audit",
				Name:      "verify_runs_total",
				Help:      "Total chain verification runs partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		chainVerifyChecked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "certiview",
				Subsystem: "audit",
				Name:      "verify_checked_entries",
				Help:      "Entries checked by the most recent verification run.",
			},
		),
		chainVerifyValid: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "certiview",
				Subsystem: "audit",
				Name:      "verify_valid",
				Help:      "Whether the most recent verification found a valid chain (1 or 0).",
			},
		),
		analysisRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certiview",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Total analysis runs partitioned by result.",
			},
			[]string{"result"},
		),
		analysisFindingsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "certiview",
				Subsystem: "analysis",
				Name:      "findings_created_total",
				Help:      "Total findings created across all analysis runs.",
			},
		),
		analysisLastFindingCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "certiview",
				Subsystem: "analysis",
				Name:      "last_run_findings",
				Help:      "Findings created by the most recent analysis run.",
			},
		),
	}
}

func (m *Metrics) AuditAppend(result string) {
	if m == nil {
		return
	}
	m.auditAppendsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ChainVerified(valid bool, checked int) {
	if m == nil {
		return
	}
	outcome := "valid"
	value := 1.0
	if !valid {
		outcome = "invalid"
		value = 0
	}
	m.chainVerifyRunsTotal.WithLabelValues(outcome).Inc()
	m.chainVerifyChecked.Set(float64(checked))
	m.chainVerifyValid.Set(value)
}

func (m *Metrics) AnalysisRun(result string, findings int) {
	if m == nil {
		return
	}
	m.analysisRunsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.analysisFindingsTotal.Add(float64(findings))
		m.analysisLastFindingCount.Set(float64(findings))
	}
}
