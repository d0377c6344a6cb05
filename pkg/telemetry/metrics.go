package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TimerTransitions counts timer state-machine operations, labelled by
	// operation (start, pause, complete, cancel) and result ("ok", a stable
	// error code, or "error" for infrastructure failures).
	TimerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agente",
		Subsystem: "timer",
		Name:      "transitions_total",
		Help:      "Total timer transitions, labelled by operation and result.",
	}, []string{"operation", "result"})

	// EventsPublished counts ledger events published to Kafka.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agente",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total task events published to the broker.",
	}, []string{"result"})

	// TasksCreated counts tasks created through the API.
	TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agente",
		Subsystem: "tasks",
		Name:      "created_total",
		Help:      "Total tasks created.",
	})

	// ReconcilerRepairs counts actual_minutes caches repaired by the nightly
	// reconciler.
	ReconcilerRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agente",
		Subsystem: "reconciler",
		Name:      "repairs_total",
		Help:      "Total drifted actual_minutes caches repaired.",
	})
)
