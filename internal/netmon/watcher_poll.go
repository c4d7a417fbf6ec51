package netmon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

// DefaultPollInterval is used when a non-positive interval is given.
const DefaultPollInterval = 5 * time.Second

type ifaceInfo struct {
	name     string
	up       bool
	loopback bool
	addrs    []net.Addr
}

// PollWatcher scans the interface list on a timer. It is the fallback for
// platforms without an event source and has no routing information: the
// first usable interface in system order is taken as active.
type PollWatcher struct {
	clock      clock.Clock
	interval   time.Duration
	interfaces func() ([]ifaceInfo, error)
	classify   func(string) connectivity.Transport
}

func NewPollWatcher(interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWatcher{
		clock:      clock.New(),
		interval:   interval,
		interfaces: systemInterfaces,
		classify:   platformClassify,
	}
}

func (w *PollWatcher) Name() string {
	return KindPoll
}

func (w *PollWatcher) Active(ctx context.Context) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}

	ifaces, err := w.interfaces()
	if err != nil {
		return Route{}, fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if !iface.up || iface.loopback || !hasGlobalUnicast(iface.addrs) {
			continue
		}
		t := w.classify(iface.name)
		if t == connectivity.None {
			log.WithField("interface", iface.name).Trace("Skipping unclassified interface")
			continue
		}
		return Route{Interface: iface.name, Transport: t}, nil
	}
	return Route{}, nil
}

func (w *PollWatcher) Watch(ctx context.Context, notify func()) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			notify()
		}
	}
}

func systemInterfaces() ([]ifaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]ifaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			log.WithError(err).WithField("interface", iface.Name).Trace("Failed to get interface addresses")
			continue
		}
		out = append(out, ifaceInfo{
			name:     iface.Name,
			up:       iface.Flags&net.FlagUp != 0,
			loopback: iface.Flags&net.FlagLoopback != 0,
			addrs:    addrs,
		})
	}
	return out, nil
}

func hasGlobalUnicast(addrs []net.Addr) bool {
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
