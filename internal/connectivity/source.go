package connectivity

import (
	"context"
	"time"
)

// EventKind distinguishes the two notifications a Source delivers.
type EventKind int

const (
	// TransportChanged carries a fresh reading of the active transport.
	TransportChanged EventKind = iota
	// Lost reports that the active network went away. It carries no
	// reading; the receiver asks the source for the current transport.
	Lost
)

func (k EventKind) String() string {
	switch k {
	case TransportChanged:
		return "transport_changed"
	case Lost:
		return "lost"
	default:
		return "unknown"
	}
}

// Event is a raw notification from the operating system.
type Event struct {
	Kind      EventKind
	Transport Transport
	Interface string
	Time      time.Time
}

// Handle identifies a Source subscription.
type Handle uint64

// Source is the operating system's connectivity service.
//
// Subscribe must deliver events for one subscription from a single goroutine
// at a time, in the order they were observed. Implementations typically emit
// a TransportChanged with the current reading right after subscribing.
type Source interface {
	Current(ctx context.Context) (Transport, error)
	Subscribe(callback func(Event)) (Handle, error)
	Unsubscribe(h Handle) error
}
