package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts settlement operations. Outcome is "ok", "rejected" (a
// business rule refused the operation) or "error".
type Recorder interface {
	Operation(op string, outcome string)
	BulkItems(op string, succeeded int, failed int)
}

type Noop struct{}

func (Noop) Operation(string, string)   {}
func (Noop) BulkItems(string, int, int) {}

type Prometheus struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	bulkItems  *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Prometheus{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magistral",
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Settlement and closure operations by outcome.",
		}, []string{"op", "outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magistral",
			Subsystem: "settlement",
			Name:      "bulk_items_total",
			Help:      "Sales processed by bulk operations by result.",
		}, []string{"op", "result"}),
	}
	registry.MustRegister(p.operations, p.bulkItems)
	return p
}

func (p *Prometheus) Operation(op string, outcome string) {
	p.operations.WithLabelValues(op, outcome).Inc()
}

func (p *Prometheus) BulkItems(op string, succeeded int, failed int) {
	p.bulkItems.WithLabelValues(op, "sucesso").Add(float64(succeeded))
	p.bulkItems.WithLabelValues(op, "falha").Add(float64(failed))
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
