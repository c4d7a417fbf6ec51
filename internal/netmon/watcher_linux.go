//go:build linux

package netmon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

type netlinkWatcher struct {
	classify func(string) connectivity.Transport
}

// NewNetlinkWatcher creates a Linux-specific watcher using netlink. The
// active route is the default route with the best metric whose link is up,
// IPv4 before IPv6.
func NewNetlinkWatcher() Watcher {
	return &netlinkWatcher{classify: platformClassify}
}

func (w *netlinkWatcher) Name() string {
	return KindNetlink
}

func (w *netlinkWatcher) Active(ctx context.Context) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}

	var candidates []netlink.Route
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := netlink.RouteList(nil, family)
		if err != nil {
			return Route{}, fmt.Errorf("list routes: %w", err)
		}
		for _, r := range routes {
			if isDefaultRoute(r) {
				candidates = append(candidates, r)
			}
		}
	}
	sortDefaultRoutes(candidates)

	for _, r := range candidates {
		index := routeLinkIndex(r)
		if index == 0 {
			continue
		}
		link, err := netlink.LinkByIndex(index)
		if err != nil {
			log.WithError(err).WithField("index", index).Trace("Failed to get link by index")
			continue
		}
		attrs := link.Attrs()
		if !linkUsable(attrs) {
			continue
		}
		t := w.classify(attrs.Name)
		if t == connectivity.None {
			continue
		}
		return Route{Interface: attrs.Name, Transport: t}, nil
	}
	return Route{}, nil
}

func (w *netlinkWatcher) Watch(ctx context.Context, notify func()) error {
	done := make(chan struct{})
	defer close(done)

	linkCh := make(chan netlink.LinkUpdate)
	addrCh := make(chan netlink.AddrUpdate)
	routeCh := make(chan netlink.RouteUpdate)

	if err := netlink.LinkSubscribe(linkCh, done); err != nil {
		return fmt.Errorf("subscribe to links: %w", err)
	}
	if err := netlink.AddrSubscribe(addrCh, done); err != nil {
		return fmt.Errorf("subscribe to addresses: %w", err)
	}
	if err := netlink.RouteSubscribe(routeCh, done); err != nil {
		return fmt.Errorf("subscribe to routes: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-linkCh:
			if !ok {
				return errors.New("link subscription closed")
			}
			log.WithField("interface", update.Link.Attrs().Name).Trace("Link update")
			notify()

		case update, ok := <-addrCh:
			if !ok {
				return errors.New("address subscription closed")
			}
			log.WithFields(log.Fields{
				"index":   update.LinkIndex,
				"address": update.LinkAddress.String(),
				"new":     update.NewAddr,
			}).Trace("Address update")
			notify()

		case update, ok := <-routeCh:
			if !ok {
				return errors.New("route subscription closed")
			}
			if isDefaultRoute(update.Route) {
				notify()
			}
		}
	}
}

func isDefaultRoute(r netlink.Route) bool {
	if r.Type != 0 && r.Type != unix.RTN_UNICAST {
		return false
	}
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0
}

func routeLinkIndex(r netlink.Route) int {
	if r.LinkIndex > 0 {
		return r.LinkIndex
	}
	for _, hop := range r.MultiPath {
		if hop.LinkIndex > 0 {
			return hop.LinkIndex
		}
	}
	return 0
}

func sortDefaultRoutes(routes []netlink.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Family != routes[j].Family {
			return routes[i].Family == netlink.FAMILY_V4
		}
		return routes[i].Priority < routes[j].Priority
	})
}

func linkUsable(attrs *netlink.LinkAttrs) bool {
	if attrs.Flags&net.FlagUp == 0 || attrs.Flags&net.FlagLoopback != 0 {
		return false
	}
	switch attrs.OperState {
	case netlink.OperDown, netlink.OperLowerLayerDown, netlink.OperNotPresent:
		return false
	}
	return true
}
