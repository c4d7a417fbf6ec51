package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/runtime"
)

var (
	// ErrDestroyed is returned by Start after Destroy.
	ErrDestroyed = errors.New("connectivity monitor destroyed")
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithExecutor sets where listeners are invoked. Without it the monitor
// starts its own Loop on the first Start and closes it on Destroy.
func WithExecutor(exec Executor) Option {
	return func(m *Monitor) {
		m.executor = exec
	}
}

// WithMetrics records events and transitions into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// Monitor watches a Source and notifies listeners when the host crosses the
// online/offline boundary. Transport changes that keep the state, such as
// WiFi to Cellular, are stored but not reported.
type Monitor struct {
	source   Source
	executor Executor
	loop     *runtime.Loop
	metrics  *Metrics
	registry registry

	// eventMu serializes readings so that notifications are posted in the
	// order the source produced them.
	eventMu sync.Mutex

	mu             sync.Mutex
	state          State
	transport      Transport
	initialState   State
	initialHandled bool
	running        bool
	destroyed      bool
	generation     uint64
	handle         Handle
	subscribed     bool
	ctx            context.Context
}

// NewMonitor creates a stopped monitor. No goroutines are started until
// Start; once started, Destroy releases them.
func NewMonitor(source Source, opts ...Option) *Monitor {
	m := &Monitor{
		source:    source,
		state:     Offline,
		transport: None,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddListener registers l and returns the ID used to remove it.
func (m *Monitor) AddListener(l Listener) ListenerID {
	return m.registry.add(l)
}

// AddListenerFunc is AddListener for a plain function.
func (m *Monitor) AddListenerFunc(f func(State, Transport)) ListenerID {
	return m.registry.add(ListenerFunc(f))
}

// RemoveListener unregisters a listener. It reports whether id was known.
// A listener removed before a pending notification runs does not receive it.
func (m *Monitor) RemoveListener(id ListenerID) bool {
	return m.registry.remove(id)
}

// State returns the last observed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transport returns the last observed transport.
func (m *Monitor) Transport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// Snapshot returns state and transport read together.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Transport: m.transport}
}

// Running reports whether the monitor is subscribed to its source.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start captures the initial state and subscribes to the source. If the
// source cannot be reached the host is treated as offline. Starting a
// running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	initial, err := m.source.Current(ctx)
	if err != nil {
		log.WithError(err).Warn("Connectivity source unavailable, assuming offline")
		initial = None
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	if m.executor == nil {
		m.loop = runtime.NewLoop("connectivity", 16)
		m.executor = m.loop.Post
	}
	m.generation++
	gen := m.generation
	m.running = true
	m.ctx = context.WithoutCancel(ctx)
	m.initialState = StateOf(initial)
	m.initialHandled = false
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"state":     StateOf(initial),
		"transport": initial,
	}).Info("Starting connectivity monitor")

	h, err := m.source.Subscribe(func(ev Event) {
		m.handleEvent(gen, ev)
	})
	if err != nil {
		log.WithError(err).Warn("Failed to subscribe to connectivity source, assuming offline")
		m.eventMu.Lock()
		if m.isCurrent(gen) {
			m.update(None)
		}
		m.eventMu.Unlock()
		return nil
	}

	m.mu.Lock()
	if m.generation != gen {
		// Stopped while subscribing.
		m.mu.Unlock()
		if err := m.source.Unsubscribe(h); err != nil {
			log.WithError(err).Debug("Failed to drop stale subscription")
		}
		return nil
	}
	m.handle = h
	m.subscribed = true
	m.mu.Unlock()

	return nil
}

// Stop unsubscribes from the source. The last observed state is kept, and
// the next Start reconciles against a freshly captured initial state.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.generation++
	h, subscribed := m.handle, m.subscribed
	m.subscribed = false
	m.mu.Unlock()

	log.Info("Stopping connectivity monitor")

	if !subscribed {
		return nil
	}
	if err := m.source.Unsubscribe(h); err != nil {
		return fmt.Errorf("unsubscribe from connectivity source: %w", err)
	}
	return nil
}

// Destroy stops the monitor and drops every listener. Notifications that
// are still pending are not delivered. Destroy is idempotent.
func (m *Monitor) Destroy() error {
	err := m.Stop()

	m.mu.Lock()
	already := m.destroyed
	m.destroyed = true
	m.mu.Unlock()

	if already {
		return err
	}

	m.registry.clear()
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop != nil {
		loop.Close()
	}
	return err
}

// Run starts the monitor, blocks until ctx is done and stops it again.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}

func (m *Monitor) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.generation == gen
}

func (m *Monitor) handleEvent(gen uint64, ev Event) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	if !m.isCurrent(gen) {
		return
	}
	m.metrics.observeEvent(ev.Kind)

	transport := ev.Transport
	if ev.Kind == Lost {
		m.mu.Lock()
		ctx := m.ctx
		m.mu.Unlock()

		var err error
		transport, err = m.source.Current(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to read connectivity after network loss, assuming offline")
			transport = None
		}
	}

	log.WithFields(log.Fields{
		"kind":      ev.Kind,
		"interface": ev.Interface,
		"transport": transport,
	}).Trace("Connectivity reading")

	m.update(transport)
}

// update applies one reading. Callers hold eventMu.
func (m *Monitor) update(transport Transport) {
	state := StateOf(transport)

	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.transport = transport
	if !m.initialHandled {
		m.initialHandled = true
		if m.initialState == state {
			m.mu.Unlock()
			m.metrics.observeReading(transport)
			log.WithField("state", state).Trace("First reading matches initial state, not notifying")
			return
		}
	}
	m.mu.Unlock()

	m.metrics.observeReading(transport)
	if changed {
		m.dispatch(state, transport)
	}
}

func (m *Monitor) dispatch(state State, transport Transport) {
	log.WithFields(log.Fields{
		"state":     state,
		"transport": transport,
	}).Debug("Connectivity changed")

	m.metrics.observeTransition(state)

	m.mu.Lock()
	exec := m.executor
	m.mu.Unlock()
	exec(func() {
		for _, l := range m.registry.snapshot() {
			l.OnConnectivityChanged(state, transport)
		}
	})
}
