package connectivity

import (
	"sync"
)

// Listener is notified when the host goes online or offline.
type Listener interface {
	OnConnectivityChanged(state State, transport Transport)
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(state State, transport Transport)

func (f ListenerFunc) OnConnectivityChanged(state State, transport Transport) {
	f(state, transport)
}

// ListenerID identifies a registered listener.
type ListenerID uint64

type registration struct {
	id       ListenerID
	listener Listener
}

// registry keeps listeners in registration order.
type registry struct {
	mu      sync.Mutex
	nextID  ListenerID
	entries []registration
}

func (r *registry) add(l Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, registration{id: r.nextID, listener: l})
	return r.nextID
}

func (r *registry) remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry) clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *registry) snapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Listener, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.listener
	}
	return out
}
