package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labstock"

const (
	OutcomeOK = "ok"

	UnitsIssued   = "issued"
	UnitsReturned = "returned"
	UnitsStocked  = "stocked"
)

// LedgerMetrics counts inventory ledger mutations and unit flow.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	units      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a recorder that drops everything.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Inventory ledger operations by outcome.",
	}, []string{"operation", "outcome"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_units_total",
		Help:      "Component units moved by the ledger.",
	}, []string{"direction"})
	reg.MustRegister(operations, units)
	return &LedgerMetrics{operations: operations, units: units}
}

// ObserveOperation records one ledger call. outcome is OutcomeOK or an
// error code.
func (m *LedgerMetrics) ObserveOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), strings.ToLower(normalizeLabel(outcome))).Inc()
}

func (m *LedgerMetrics) AddUnits(direction string, units int) {
	if m == nil || m.units == nil || units <= 0 {
		return
	}
	m.units.WithLabelValues(normalizeLabel(direction)).Add(float64(units))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
