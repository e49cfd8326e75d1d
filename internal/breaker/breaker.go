// Package breaker keeps per-service circuit breakers so a failing provider is
// skipped quickly instead of being retried on every guest message.
package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// State is the circuit state of a single service.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// gaugeValue maps a state to the number exported as a metric.
func (s State) gaugeValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Settings control when a circuit trips and how long it stays open.
type Settings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Status is a point-in-time snapshot of one breaker.
type Status struct {
	Service          string        `json:"service"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	SuccessCount     int           `json:"success_count"`
	LastFailure      time.Time     `json:"last_failure,omitempty"`
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// StateObserver receives the numeric state whenever a circuit changes.
type StateObserver interface {
	SetBreakerState(service string, value float64)
}

type entry struct {
	mu            sync.Mutex
	service       string
	settings      Settings
	state         State
	failureCount  int
	successCount  int
	lastFailure   time.Time
	probeInFlight bool
	probeStarted  time.Time
}

// Registry holds one breaker per service name. Entries are created lazily
// with the default settings unless configured explicitly.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	defaults Settings
	now      func() time.Time
	logger   *logging.Logger
	observer StateObserver
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver publishes state changes, typically to a Prometheus gauge.
func WithObserver(observer StateObserver) Option {
	return func(r *Registry) {
		r.observer = observer
	}
}

// NewRegistry builds a registry using defaults for services that were never
// configured explicitly.
func NewRegistry(defaults Settings, opts ...Option) *Registry {
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = 3
	}
	if defaults.RecoveryTimeout <= 0 {
		defaults.RecoveryTimeout = 30 * time.Second
	}
	r := &Registry{
		entries:  make(map[string]*entry),
		defaults: defaults,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Component("breaker")
	return r
}

// Configure registers a service with its own thresholds, resetting any state.
func (r *Registry) Configure(service string, settings Settings) {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = r.defaults.FailureThreshold
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = r.defaults.RecoveryTimeout
	}
	r.mu.Lock()
	r.entries[service] = &entry{service: service, settings: settings, state: StateClosed}
	r.mu.Unlock()
	r.publish(service, StateClosed)
}

func (r *Registry) get(service string) *entry {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[service]; ok {
		return e
	}
	e = &entry{service: service, settings: r.defaults, state: StateClosed}
	r.entries[service] = e
	return e
}

// CanExecute reports whether a call to service may proceed. An open circuit
// whose recovery timeout has elapsed moves to half-open and admits exactly
// one probe; other callers are rejected until that probe is recorded. A probe
// that records no outcome within the recovery timeout is abandoned and the
// next caller becomes the probe.
func (r *Registry) CanExecute(service string) bool {
	e := r.get(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.now().Sub(e.lastFailure) < e.settings.RecoveryTimeout {
			return false
		}
		e.state = StateHalfOpen
		e.successCount = 0
		e.probeInFlight = true
		e.probeStarted = r.now()
		r.logger.Info("circuit half-open", "service", service)
		r.publish(service, StateHalfOpen)
		return true
	case StateHalfOpen:
		now := r.now()
		if e.probeInFlight && now.Sub(e.probeStarted) < e.settings.RecoveryTimeout {
			return false
		}
		if e.probeInFlight {
			r.logger.Warn("circuit probe abandoned", "service", service)
		}
		e.probeInFlight = true
		e.probeStarted = now
		return true
	}
	return false
}

// RecordSuccess notes a successful call. A success while closed clears the
// consecutive failure count; a success while half-open closes the circuit.
func (r *Registry) RecordSuccess(service string) {
	e := r.get(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failureCount = 0
	e.probeInFlight = false
	if e.state == StateClosed {
		e.successCount++
		return
	}
	e.state = StateClosed
	e.successCount = 0
	r.logger.Info("circuit closed", "service", service)
	r.publish(service, StateClosed)
}

// RecordFailure notes a failed call. A failure while half-open reopens the
// circuit immediately.
func (r *Registry) RecordFailure(service string) {
	e := r.get(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.now()
	e.probeInFlight = false
	switch e.state {
	case StateHalfOpen:
		e.state = StateOpen
		e.lastFailure = now
		e.failureCount++
		r.logger.Warn("circuit reopened", "service", service)
		r.publish(service, StateOpen)
	case StateOpen:
		e.failureCount++
		e.lastFailure = now
	default:
		e.failureCount++
		e.lastFailure = now
		if e.failureCount >= e.settings.FailureThreshold {
			e.state = StateOpen
			r.logger.Warn("circuit opened", "service", service, "failures", e.failureCount)
			r.publish(service, StateOpen)
		}
	}
}

// Status returns a snapshot for one service.
func (r *Registry) Status(service string) Status {
	e := r.get(service)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Statuses returns snapshots for every known service, sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Reset forces a service back to closed.
func (r *Registry) Reset(service string) {
	e := r.get(service)
	e.mu.Lock()
	e.state = StateClosed
	e.failureCount = 0
	e.successCount = 0
	e.probeInFlight = false
	e.mu.Unlock()
	r.publish(service, StateClosed)
}

func (e *entry) snapshot() Status {
	return Status{
		Service:          e.service,
		State:            e.state,
		FailureCount:     e.failureCount,
		SuccessCount:     e.successCount,
		LastFailure:      e.lastFailure,
		FailureThreshold: e.settings.FailureThreshold,
		RecoveryTimeout:  e.settings.RecoveryTimeout,
	}
}

func (r *Registry) publish(service string, state State) {
	if r.observer == nil {
		return
	}
	r.observer.SetBreakerState(service, state.gaugeValue())
}
