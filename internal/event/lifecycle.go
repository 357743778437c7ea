// Package event records the orchestrator's fire-and-forget lifecycle
// notifications (spec section 4.1: cycle started/completed/failed, guard
// denied, group enriched, session closed/archived) as Prometheus counters
// plus a small in-memory tail, and tracks the consecutive-cycle-failure
// streak the orchestrator's cycle loop consults to widen its failure pause.
package event

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Type names one lifecycle event the orchestrator or its components emit.
type Type string

const (
	CycleStarted       Type = "cycle.started"
	CycleCompleted     Type = "cycle.completed"
	CycleFailed        Type = "cycle.failed"
	GroupEnriched      Type = "group.enriched"
	SessionClosed      Type = "session.closed"
	SessionArchived    Type = "session.archived"
	VisionBatchSkipped Type = "vision.batch_skipped"
	GuardDenied        Type = "guard.denied"
)

// Event is one lifecycle notification.
type Event struct {
	Type Type
	Data any
}

const tailSize = 20

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemosyne_brain_lifecycle_events_total",
		Help: "Count of orchestrator lifecycle notifications by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(eventsTotal)
}

// recorder holds the process-wide lifecycle state: a bounded tail of
// recent events for diagnostics, and the streak of consecutive cycle
// failures since the last success.
type recorder struct {
	mu sync.Mutex

	tail          []Event
	failureStreak int
}

var global = &recorder{}

// Publish records e: it increments the per-type counter, appends to the
// recent-events tail, and updates the consecutive-failure streak on
// CycleFailed/CycleCompleted.
func Publish(e Event) { global.publish(e) }

func (r *recorder) publish(e Event) {
	eventsTotal.WithLabelValues(string(e.Type)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tail = append(r.tail, e)
	if len(r.tail) > tailSize {
		r.tail = r.tail[len(r.tail)-tailSize:]
	}

	switch e.Type {
	case CycleFailed:
		r.failureStreak++
	case CycleCompleted:
		r.failureStreak = 0
	}
}

// Recent returns a snapshot of the most recently published events,
// oldest first, capped at tailSize.
func Recent() []Event { return global.recent() }

func (r *recorder) recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.tail))
	copy(out, r.tail)
	return out
}

// ConsecutiveFailures reports how many cycles have failed in a row since
// the last CycleCompleted, for a health check to escalate on (e.g. widen
// the backoff or surface a degraded status) without re-deriving it from
// logs.
func ConsecutiveFailures() int { return global.consecutiveFailures() }

func (r *recorder) consecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureStreak
}

// Reset clears the process-wide recorder state. Tests use this to start
// each case with an empty tail and failure streak; it does not
// unregister the Prometheus counters, which are process-lifetime.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.tail = nil
	global.failureStreak = 0
}
