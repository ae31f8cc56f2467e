// Package metrics exposes the broker's prometheus instrumentation, a
// domain-stack addition (spec.md names none, SPEC_FULL.md's domain stack
// table adds it) grounded on the teacher's prometheus/client_golang use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ReadyWorkers tracks workerpool.Pool's current ready-count.
	ReadyWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loolbrokerd",
		Name:      "ready_workers",
		Help:      "Number of ready, unbound worker handles currently held by the pool.",
	})

	// ActiveSessions tracks the total number of attached user sessions
	// across every broker.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loolbrokerd",
		Name:      "active_sessions",
		Help:      "Number of user sessions currently attached to a broker.",
	})

	// ActiveBrokers tracks BrokerRegistry.Len().
	ActiveBrokers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loolbrokerd",
		Name:      "active_brokers",
		Help:      "Number of live document brokers in the registry.",
	})

	// AcquireTimeouts counts WorkerPool.Acquire calls that expired.
	AcquireTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loolbrokerd",
		Name:      "acquire_timeouts_total",
		Help:      "Total number of WorkerPool.Acquire calls that timed out.",
	})

	// SupervisorSpawnFailures counts SupervisorLink.Spawn write failures.
	SupervisorSpawnFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loolbrokerd",
		Name:      "supervisor_spawn_failures_total",
		Help:      "Total number of failed writes to the supervisor command pipe.",
	})

	// FramesForwarded counts frames forwarded by any SessionPipeline,
	// labeled by direction, supporting the per-session frame counter
	// supplement (SPEC_FULL.md supplemented feature 2).
	FramesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loolbrokerd",
		Name:      "frames_forwarded_total",
		Help:      "Total number of frames forwarded between user and worker sockets.",
	}, []string{"direction"})
)

// Registry returns a fresh prometheus.Registerer with every collector
// above registered; used by pkg/api/internalapi's Router to serve /metrics
// and by tests that want isolated collectors.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(ReadyWorkers, ActiveSessions, ActiveBrokers, AcquireTimeouts, SupervisorSpawnFailures, FramesForwarded)
	return r
}
