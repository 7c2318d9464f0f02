package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inventory_operations_total",
		Help: "Service operations by name and outcome.",
	},
	[]string{"operation", "outcome"},
)

func observeOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
