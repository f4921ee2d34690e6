package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by containers.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the intent path.
type Collector interface {
	IncIntentDispatched(container string)
	IncIntentFailed(container string)
	IncIntentCancelled(container string)
	ObserveIntentDuration(container string, d time.Duration)
	IncSideEffectPosted(container string)
	IncStateUpdate(container string)
	SetSubscribers(container string, count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncIntentDispatched(string)                  {}
func (noopCollector) IncIntentFailed(string)                      {}
func (noopCollector) IncIntentCancelled(string)                   {}
func (noopCollector) ObserveIntentDuration(string, time.Duration) {}
func (noopCollector) IncSideEffectPosted(string)                  {}
func (noopCollector) IncStateUpdate(string)                       {}
func (noopCollector) SetSubscribers(string, int)                  {}

// PrometheusCollector exposes container telemetry via Prometheus.
type PrometheusCollector struct {
	dispatched  *prometheus.CounterVec
	failed      *prometheus.CounterVec
	cancelled   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	sideEffects *prometheus.CounterVec
	states      *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

var (
	sharedCollectors     = make(map[prometheus.Registerer]*PrometheusCollector)
	sharedCollectorsLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Repeated calls with the same registerer share the metrics.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sharedCollectorsLock.Lock()
	defer sharedCollectorsLock.Unlock()
	if existing, ok := sharedCollectors[reg]; ok {
		return existing, nil
	}

	labels := []string{"container"}
	dispatched, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_intents_dispatched_total",
		Help: "Number of intents launched by the dispatch loop.",
	}, labels))
	if err != nil {
		return nil, err
	}
	failed, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_intents_failed_total",
		Help: "Number of intents that returned an error or panicked.",
	}, labels))
	if err != nil {
		return nil, err
	}
	cancelled, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_intents_cancelled_total",
		Help: "Number of intents cancelled before completing.",
	}, labels))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbit_intent_duration_seconds",
		Help:    "Wall time spent running intents.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, labels))
	if err != nil {
		return nil, err
	}
	sideEffects, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_side_effects_posted_total",
		Help: "Number of side effects accepted by the side-effect queue.",
	}, labels))
	if err != nil {
		return nil, err
	}
	states, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_state_updates_total",
		Help: "Number of distinct states produced by reducers.",
	}, labels))
	if err != nil {
		return nil, err
	}
	subscribers, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orbit_subscribers",
		Help: "Number of ref-counted observers attached to a container.",
	}, labels))
	if err != nil {
		return nil, err
	}

	collector := &PrometheusCollector{
		dispatched:  dispatched,
		failed:      failed,
		cancelled:   cancelled,
		duration:    duration,
		sideEffects: sideEffects,
		states:      states,
		subscribers: subscribers,
	}
	sharedCollectors[reg] = collector
	return collector, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// IncIntentDispatched counts a launched intent.
func (p *PrometheusCollector) IncIntentDispatched(container string) {
	if p == nil || p.dispatched == nil {
		return
	}
	p.dispatched.WithLabelValues(container).Inc()
}

// IncIntentFailed counts a failed intent.
func (p *PrometheusCollector) IncIntentFailed(container string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(container).Inc()
}

// IncIntentCancelled counts a cancelled intent.
func (p *PrometheusCollector) IncIntentCancelled(container string) {
	if p == nil || p.cancelled == nil {
		return
	}
	p.cancelled.WithLabelValues(container).Inc()
}

// ObserveIntentDuration records how long an intent ran.
func (p *PrometheusCollector) ObserveIntentDuration(container string, d time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(container).Observe(d.Seconds())
}

// IncSideEffectPosted counts a posted side effect.
func (p *PrometheusCollector) IncSideEffectPosted(container string) {
	if p == nil || p.sideEffects == nil {
		return
	}
	p.sideEffects.WithLabelValues(container).Inc()
}

// IncStateUpdate counts a distinct state emission.
func (p *PrometheusCollector) IncStateUpdate(container string) {
	if p == nil || p.states == nil {
		return
	}
	p.states.WithLabelValues(container).Inc()
}

// SetSubscribers updates the gauge tracking ref-counted observers.
func (p *PrometheusCollector) SetSubscribers(container string, count int) {
	if p == nil || p.subscribers == nil {
		return
	}
	p.subscribers.WithLabelValues(container).Set(float64(count))
}
