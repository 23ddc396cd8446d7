package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexiqai/slide-narrator/internal/resilience"
)

var (
	// Event source metrics
	slideEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_events_total",
		Help: "Slide-change notifications received, by result (queued, dropped)",
	}, []string{"transport", "result"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slide_narrator_queue_depth",
		Help: "Slide identifiers waiting to be consumed by the narrator loop",
	})

	// Narration metrics
	narrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_narrations_total",
		Help: "Slide narrations attempted, by status",
	}, []string{"status"})

	visitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slide_narrator_visit_duration_seconds",
		Help:    "Time spent on a single slide visit (narration plus Q&A)",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	orchestratorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slide_narrator_state",
		Help: "Current orchestrator state (0=idle_wait, 1=resolving, 2=narrating, 3=qa_prompting, 4=qa_listening, 5=qa_answering)",
	})

	// Q&A metrics
	qaSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_qa_sessions_total",
		Help: "Q&A windows by outcome (declined, silence, turn_limit, error)",
	}, []string{"outcome"})

	qaTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slide_narrator_qa_turns_total",
		Help: "Questions answered during Q&A windows",
	})

	// Capability metrics
	capabilityRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_capability_requests_total",
		Help: "Calls into external capabilities, by capability and status",
	}, []string{"capability", "status"})

	capabilityLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slide_narrator_capability_latency_seconds",
		Help:    "Latency of external capability calls in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"capability"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slide_narrator_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slide_narrator_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single slide visit
type Metrics struct {
	slideIndex int
	startTime  time.Time
	mu         sync.Mutex
	ended      bool
}

// NewVisitMetrics creates a new metrics tracker for a slide visit
func NewVisitMetrics(slideIndex int) *Metrics {
	return &Metrics{
		slideIndex: slideIndex,
		startTime:  time.Now(),
	}
}

// RecordVisitEnd records the end of a slide visit. Only the first call counts.
func (m *Metrics) RecordVisitEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true
	visitDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordNarration records the outcome of the narration step
func (m *Metrics) RecordNarration(success bool) {
	narrations.WithLabelValues(statusLabel(success)).Inc()
}

// RecordQAOutcome records how the Q&A window of this visit ended
func (m *Metrics) RecordQAOutcome(outcome string) {
	qaSessions.WithLabelValues(outcome).Inc()
}

// RecordQATurn records one answered question
func (m *Metrics) RecordQATurn() {
	qaTurns.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordCapability records a call into an external capability that started at start.
func RecordCapability(capability string, start time.Time, success bool) {
	capabilityLatency.WithLabelValues(capability).Observe(time.Since(start).Seconds())
	capabilityRequests.WithLabelValues(capability, statusLabel(success)).Inc()
}

// RecordError records an error outside of a visit
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordSlideEvent records an inbound slide-change notification
func RecordSlideEvent(transport, result string) {
	slideEvents.WithLabelValues(transport, result).Inc()
}

// SetQueueDepth publishes the current pending event count
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetOrchestratorState publishes the orchestrator's current state
func SetOrchestratorState(state int) {
	orchestratorState.Set(float64(state))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// ObserveCircuitBreaker publishes a breaker's transitions as metrics.
func ObserveCircuitBreaker(cb *resilience.CircuitBreaker) {
	UpdateCircuitBreakerState(cb.Name(), int(cb.GetState()))
	cb.OnStateChange(func(name string, _, to resilience.CircuitState) {
		UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			IncrementCircuitBreakerFailures(name)
		}
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
