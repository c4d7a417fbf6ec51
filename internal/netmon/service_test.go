package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

// mockWatcher is a test double for the Watcher interface
type mockWatcher struct {
	mu        sync.Mutex
	route     Route
	activeErr error
	notify    func()
	watchErr  chan error
}

func newMockWatcher(r Route) *mockWatcher {
	return &mockWatcher{route: r, watchErr: make(chan error, 1)}
}

func (m *mockWatcher) Name() string { return "mock" }

func (m *mockWatcher) Active(ctx context.Context) (Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.route, m.activeErr
}

func (m *mockWatcher) Watch(ctx context.Context, notify func()) error {
	m.mu.Lock()
	m.notify = notify
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil
	case err := <-m.watchErr:
		return err
	}
}

// set changes the active route and fires the watcher notification.
func (m *mockWatcher) set(r Route, err error) {
	m.mu.Lock()
	m.route, m.activeErr = r, err
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (m *mockWatcher) watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notify != nil
}

func subscribe(t *testing.T, s *Service) (<-chan connectivity.Event, connectivity.Handle) {
	t.Helper()
	ch := make(chan connectivity.Event, 16)
	h, err := s.Subscribe(func(ev connectivity.Event) { ch <- ev })
	require.NoError(t, err)
	return ch, h
}

func nextEvent(t *testing.T, ch <-chan connectivity.Event) connectivity.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return connectivity.Event{}
	}
}

func noEvent(t *testing.T, ch <-chan connectivity.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_Current(t *testing.T) {
	w := newMockWatcher(Route{Interface: "wlan0", Transport: connectivity.WiFi})
	s := NewService(w)
	defer s.Close()

	got, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, connectivity.WiFi, got)

	w.set(Route{}, errors.New("netlink unavailable"))
	got, err = s.Current(context.Background())
	assert.Error(t, err)
	assert.Equal(t, connectivity.None, got)
}

func TestService_Subscribe_InitialReading(t *testing.T) {
	w := newMockWatcher(Route{Interface: "eth0", Transport: connectivity.Ethernet})
	s := NewService(w)
	defer s.Close()

	ch, _ := subscribe(t, s)

	ev := nextEvent(t, ch)
	assert.Equal(t, connectivity.TransportChanged, ev.Kind)
	assert.Equal(t, connectivity.Ethernet, ev.Transport)
	assert.Equal(t, "eth0", ev.Interface)
	assert.False(t, ev.Time.IsZero())
}

func TestService_EmitsOnlyOnRouteChange(t *testing.T) {
	w := newMockWatcher(Route{Interface: "wlan0", Transport: connectivity.WiFi})
	s := NewService(w)
	defer s.Close()

	ch, _ := subscribe(t, s)
	nextEvent(t, ch)
	require.Eventually(t, w.watching, time.Second, 5*time.Millisecond)

	// Same route again: nothing to report.
	w.set(Route{Interface: "wlan0", Transport: connectivity.WiFi}, nil)
	noEvent(t, ch)

	w.set(Route{Interface: "wwan0", Transport: connectivity.Cellular}, nil)
	ev := nextEvent(t, ch)
	assert.Equal(t, connectivity.TransportChanged, ev.Kind)
	assert.Equal(t, connectivity.Cellular, ev.Transport)
}

func TestService_LostWhenRouteDisappears(t *testing.T) {
	w := newMockWatcher(Route{Interface: "wlan0", Transport: connectivity.WiFi})
	s := NewService(w)
	defer s.Close()

	ch, _ := subscribe(t, s)
	nextEvent(t, ch)
	require.Eventually(t, w.watching, time.Second, 5*time.Millisecond)

	w.set(Route{}, nil)
	ev := nextEvent(t, ch)
	assert.Equal(t, connectivity.Lost, ev.Kind)
	assert.Equal(t, "wlan0", ev.Interface)

	w.set(Route{Interface: "eth0", Transport: connectivity.Ethernet}, nil)
	ev = nextEvent(t, ch)
	assert.Equal(t, connectivity.TransportChanged, ev.Kind)
	assert.Equal(t, connectivity.Ethernet, ev.Transport)
}

func TestService_ReadFailureReportedOnce(t *testing.T) {
	w := newMockWatcher(Route{Interface: "eth0", Transport: connectivity.Ethernet})
	s := NewService(w)
	defer s.Close()

	ch, _ := subscribe(t, s)
	nextEvent(t, ch)
	require.Eventually(t, w.watching, time.Second, 5*time.Millisecond)

	w.set(Route{}, errors.New("dump interrupted"))
	assert.Equal(t, connectivity.Lost, nextEvent(t, ch).Kind)

	w.set(Route{}, errors.New("dump interrupted"))
	noEvent(t, ch)

	// Recovery reports the reading even if it matches the pre-failure one.
	w.set(Route{Interface: "eth0", Transport: connectivity.Ethernet}, nil)
	ev := nextEvent(t, ch)
	assert.Equal(t, connectivity.TransportChanged, ev.Kind)
	assert.Equal(t, connectivity.Ethernet, ev.Transport)
}

func TestService_WatchFailureEndsWithLost(t *testing.T) {
	w := newMockWatcher(Route{Interface: "eth0", Transport: connectivity.Ethernet})
	s := NewService(w)
	defer s.Close()

	ch, _ := subscribe(t, s)
	nextEvent(t, ch)

	w.watchErr <- errors.New("socket closed")
	ev := nextEvent(t, ch)
	assert.Equal(t, connectivity.Lost, ev.Kind)
	assert.Equal(t, "eth0", ev.Interface)
}

func TestService_Unsubscribe(t *testing.T) {
	w := newMockWatcher(Route{Interface: "eth0", Transport: connectivity.Ethernet})
	s := NewService(w)
	defer s.Close()

	ch, h := subscribe(t, s)
	nextEvent(t, ch)
	require.Eventually(t, w.watching, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Unsubscribe(h))
	assert.ErrorIs(t, s.Unsubscribe(h), ErrNotSubscribed)

	w.set(Route{}, nil)
	noEvent(t, ch)
}

func TestService_MultipleSubscribers(t *testing.T) {
	w := newMockWatcher(Route{Interface: "wlan0", Transport: connectivity.WiFi})
	s := NewService(w)
	defer s.Close()

	ch1, h1 := subscribe(t, s)
	ch2, h2 := subscribe(t, s)
	assert.NotEqual(t, h1, h2)

	for _, ch := range []<-chan connectivity.Event{ch1, ch2} {
		assert.Equal(t, connectivity.WiFi, nextEvent(t, ch).Transport)
	}
}

func TestService_Close(t *testing.T) {
	w := newMockWatcher(Route{})
	s := NewService(w)

	_, h := subscribe(t, s)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Unsubscribe(h), ErrNotSubscribed)
	_, err := s.Subscribe(func(connectivity.Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestService_NilCallback(t *testing.T) {
	s := NewService(newMockWatcher(Route{}))
	defer s.Close()

	_, err := s.Subscribe(nil)
	assert.Error(t, err)
}

func TestService_DrivesMonitor(t *testing.T) {
	w := newMockWatcher(Route{Interface: "wlan0", Transport: connectivity.WiFi})
	s := NewService(w)
	defer s.Close()

	m := connectivity.NewMonitor(s)
	got := make(chan connectivity.Status, 4)
	m.AddListenerFunc(func(state connectivity.State, transport connectivity.Transport) {
		got <- connectivity.Status{State: state, Transport: transport}
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Destroy()

	require.Eventually(t, w.watching, time.Second, 5*time.Millisecond)
	// Give the initial reading time to reconcile before changing the route.
	require.Eventually(t, func() bool { return m.Transport() == connectivity.WiFi }, time.Second, 5*time.Millisecond)

	w.set(Route{}, nil)

	select {
	case st := <-got:
		assert.Equal(t, connectivity.Status{State: connectivity.Offline, Transport: connectivity.None}, st)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for offline notification")
	}
}
