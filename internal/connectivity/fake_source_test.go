package connectivity

import (
	"context"
	"errors"
	"sync"
)

// fakeSource is a hand-driven Source.
type fakeSource struct {
	mu           sync.Mutex
	current      Transport
	currentErr   error
	subscribeErr error
	next         Handle
	callbacks    map[Handle]func(Event)
	unsubscribed []Handle
	currentCalls int
}

func newFakeSource(current Transport) *fakeSource {
	return &fakeSource{
		current:   current,
		callbacks: make(map[Handle]func(Event)),
	}
}

func (f *fakeSource) Current(ctx context.Context) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	return f.current, f.currentErr
}

func (f *fakeSource) Subscribe(callback func(Event)) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return 0, f.subscribeErr
	}
	f.next++
	f.callbacks[f.next] = callback
	return f.next, nil
}

func (f *fakeSource) Unsubscribe(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.callbacks[h]; !ok {
		return errors.New("unknown handle")
	}
	delete(f.callbacks, h)
	f.unsubscribed = append(f.unsubscribed, h)
	return nil
}

func (f *fakeSource) setCurrent(t Transport) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks)
}

// read delivers a TransportChanged reading to every subscriber.
func (f *fakeSource) read(t Transport) {
	f.emit(Event{Kind: TransportChanged, Transport: t})
}

func (f *fakeSource) emit(ev Event) {
	f.mu.Lock()
	cbs := make([]func(Event), 0, len(f.callbacks))
	for _, cb := range f.callbacks {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}
