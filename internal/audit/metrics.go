package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_audit_records_total",
			Help: "Audit records by outcome (written, failed, dropped).",
		},
		[]string{"result"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_audit_queue_depth",
			Help: "Audit records waiting to be written.",
		},
	)
)

func recordOutcome(result string) {
	recordsTotal.WithLabelValues(result).Inc()
}
