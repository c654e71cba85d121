package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DataObservers is the Data key carrying the post-transition observer count
// of Event.Key. PrometheusObserver mirrors it into a gauge.
const DataObservers = "observers"

// PrometheusObserver counts events by type and level and tracks the active
// observer count per atom key.
type PrometheusObserver struct {
	events    *prometheus.CounterVec
	observers *prometheus.GaugeVec
}

// NewPrometheusObserver registers its collectors with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atomstore_events_total",
			Help: "Total number of store engine events by type and level",
		}, []string{"type", "level"}),
		observers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "atomstore_active_observers",
			Help: "Active observers per atom key",
		}, []string{"scope", "key"}),
	}

	for _, c := range []prometheus.Collector{o.events, o.observers} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return o, nil
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String()).Inc()

	if event.Key == "" {
		return
	}
	n, ok := event.Data[DataObservers].(int)
	if !ok {
		return
	}
	if n == 0 {
		o.observers.DeleteLabelValues(event.Scope, event.Key)
		return
	}
	o.observers.WithLabelValues(event.Scope, event.Key).Set(float64(n))
}
