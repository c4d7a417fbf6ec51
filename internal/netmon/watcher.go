package netmon

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Watcher reads the active route from the operating system and reports
// when it may have changed. Platform implementations use netlink on Linux,
// route sockets on macOS and NetworkManager over D-Bus; PollWatcher works
// everywhere.
type Watcher interface {
	Name() string

	// Active returns the route carrying traffic right now. A host without
	// one gets the zero Route and a nil error.
	Active(ctx context.Context) (Route, error)

	// Watch calls notify whenever the active route may have changed.
	// Blocks until ctx is cancelled or the event stream fails.
	Watch(ctx context.Context, notify func()) error
}

// Source kinds accepted by NewWatcher.
const (
	KindAuto           = "auto"
	KindNetlink        = "netlink"
	KindRoute          = "route"
	KindNetworkManager = "networkmanager"
	KindPoll           = "poll"
)

var (
	ErrUnknownSource = errors.New("unknown connectivity source")
	ErrUnsupported   = errors.New("connectivity source not supported on this platform")
)

// NewWatcher builds the watcher for kind. pollInterval only applies to the
// polling watcher.
func NewWatcher(kind string, pollInterval time.Duration) (Watcher, error) {
	switch kind {
	case "", KindAuto:
		return newDefaultWatcher(pollInterval), nil
	case KindPoll:
		return NewPollWatcher(pollInterval), nil
	case KindNetworkManager:
		return NewNetworkManagerWatcher(), nil
	case KindNetlink, KindRoute:
		w, err := newNativeWatcher(kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownSource)
	}
}
