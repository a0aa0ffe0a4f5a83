package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// Operation names used as the op label.
const (
	OpInitialize       = "initialize_deposit"
	OpModifyBalance    = "modify_balance"
	OpTransfer         = "transfer_deposit"
	OpCreatePermission = "create_permission"
	OpDelegate         = "delegate"
	OpUndelegate       = "undelegate"
	OpCompensation     = "compensation"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var operations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: "deposit_ledger",
	Name:      "operations_total",
	Help:      "Ledger operations by name and outcome.",
}, []string{"op", "result"})

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Record counts one operation; result is "ok" or the ledger error code.
func Record(op string, err error) {
	result := "ok"
	if err != nil {
		result = ledger.Code(err)
	}
	operations.WithLabelValues(op, result).Inc()
}
