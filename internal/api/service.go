package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
	"github.com/dmdmdm-nz/connwatch/internal/runtime"
)

// StatusProvider reports the current connectivity status.
type StatusProvider interface {
	Snapshot() connectivity.Status
}

// check Service compliance to the listener interface during compile time
var _ connectivity.Listener = (*Service)(nil)

// Service represents the HTTP server for the API. It is registered as a
// connectivity listener and fans transitions out to WebSocket clients.
type Service struct {
	address  string
	port     int
	status   StatusProvider
	gatherer prometheus.Gatherer

	subsMu sync.Mutex
	subs   map[int]*runtime.SubQueue[TransitionEvent]
	nextID int
	closed bool
}

func NewService(host string, port int, status StatusProvider, gatherer prometheus.Gatherer) *Service {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Service{
		address:  host,
		port:     port,
		status:   status,
		gatherer: gatherer,
		subs:     make(map[int]*runtime.SubQueue[TransitionEvent]),
	}
}

func (s *Service) OnConnectivityChanged(state connectivity.State, transport connectivity.Transport) {
	s.broadcast(newTransitionEvent(connectivity.Status{State: state, Transport: transport}, false))
}

// Subscribe returns a stream that starts with the current status and then
// carries every transition. The channel is closed by the returned func or
// by Close.
func (s *Service) Subscribe() (<-chan TransitionEvent, func()) {
	sub := runtime.NewSubQueue[TransitionEvent](8)

	// Register paused so live events queue behind the snapshot.
	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.subsMu.Unlock()

	if !sub.SendSnapshot(newTransitionEvent(s.status.Snapshot(), true)) {
		log.Debug("Event stream closed before snapshot was sent")
	}
	sub.SetPaused(false)

	unsub := func() {
		s.subsMu.Lock()
		if q, ok := s.subs[id]; ok {
			delete(s.subs, id)
			q.Close()
		}
		s.subsMu.Unlock()
	}
	return sub.Chan(), unsub
}

// Start serves the API until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Starting connwatch API service at %s", addr)
	defer log.Info("Stopping connwatch API service")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve API on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down API server cleanly")
		}
		return nil
	}
}

// Close ends every event stream.
func (s *Service) Close() error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, q := range s.subs {
		q.Close()
		delete(s.subs, id)
	}
	return nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.status.Snapshot()); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode status: %v", err), http.StatusInternalServerError)
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		StreamEvents(s, w, r)
	})
	return mux
}

func (s *Service) broadcast(ev TransitionEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.Enqueue(ev)
	}
}
