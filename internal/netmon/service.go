package netmon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

var (
	ErrNotSubscribed = errors.New("no such subscription")
	ErrClosed        = errors.New("connectivity source closed")
)

// check Service compliance to its interface during compile time
var _ connectivity.Source = (*Service)(nil)

// Service turns a Watcher into a connectivity.Source. Every subscription
// runs its own watch loop and receives the current reading first, then one
// event per change of the active route.
type Service struct {
	watcher Watcher

	mu     sync.Mutex
	nextID connectivity.Handle
	subs   map[connectivity.Handle]context.CancelFunc
	closed bool
}

func NewService(watcher Watcher) *Service {
	return &Service{
		watcher: watcher,
		subs:    make(map[connectivity.Handle]context.CancelFunc),
	}
}

func (s *Service) Name() string {
	return s.watcher.Name()
}

func (s *Service) Current(ctx context.Context) (connectivity.Transport, error) {
	r, err := s.watcher.Active(ctx)
	if err != nil {
		return connectivity.None, fmt.Errorf("%s: read active route: %w", s.watcher.Name(), err)
	}
	return r.Transport, nil
}

func (s *Service) Subscribe(callback func(connectivity.Event)) (connectivity.Handle, error) {
	if callback == nil {
		return 0, errors.New("nil callback")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.nextID++
	id := s.nextID
	ctx, cancel := context.WithCancel(context.Background())
	s.subs[id] = cancel
	s.mu.Unlock()

	go s.run(ctx, id, callback)
	return id, nil
}

// Unsubscribe cancels a subscription. It does not wait for an in-flight
// callback to return.
func (s *Service) Unsubscribe(h connectivity.Handle) error {
	s.mu.Lock()
	cancel, ok := s.subs[h]
	delete(s.subs, h)
	s.mu.Unlock()

	if !ok {
		return ErrNotSubscribed
	}
	cancel()
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, cancel := range s.subs {
		cancel()
		delete(s.subs, id)
	}
	return nil
}

func (s *Service) run(ctx context.Context, id connectivity.Handle, callback func(connectivity.Event)) {
	logger := log.WithFields(log.Fields{
		"source":       s.watcher.Name(),
		"subscription": id,
	})
	logger.Debug("Watching connectivity source")
	defer logger.Debug("Stopped watching connectivity source")

	notify := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- s.watcher.Watch(ctx, func() {
			select {
			case notify <- struct{}{}:
			default:
			}
		})
	}()

	t := &tracker{
		emit: func(ev connectivity.Event) {
			if ctx.Err() != nil {
				return
			}
			ev.Time = time.Now()
			logger.WithFields(log.Fields{
				"kind":      ev.Kind,
				"transport": ev.Transport,
				"interface": ev.Interface,
			}).Trace("Connectivity event")
			callback(ev)
		},
	}

	evaluate := func() {
		r, err := s.watcher.Active(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Failed to read active route")
		}
		t.observe(r, err)
	}

	evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			evaluate()
		case err := <-watchErr:
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = errors.New("watch ended")
			}
			logger.WithError(err).Warn("Connectivity source stopped delivering events")
			t.fail()
			return
		}
	}
}

// tracker turns successive route readings into events.
type tracker struct {
	emit        func(connectivity.Event)
	last        Route
	initialized bool
	failed      bool
}

func (t *tracker) observe(r Route, err error) {
	if err != nil {
		t.fail()
		return
	}

	if t.initialized && !t.failed && r == t.last {
		return
	}

	prev, wasInitialized := t.last, t.initialized
	t.last, t.initialized, t.failed = r, true, false

	if wasInitialized && prev.Transport != connectivity.None && r.Transport == connectivity.None {
		t.emit(connectivity.Event{Kind: connectivity.Lost, Interface: prev.Interface})
		return
	}
	t.emit(connectivity.Event{
		Kind:      connectivity.TransportChanged,
		Transport: r.Transport,
		Interface: r.Interface,
	})
}

// fail reports the loss of the source once.
func (t *tracker) fail() {
	if t.failed {
		return
	}
	prev := t.last
	t.last, t.initialized, t.failed = Route{}, true, true
	t.emit(connectivity.Event{Kind: connectivity.Lost, Interface: prev.Interface})
}
