//go:build darwin

package netmon

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/route"
	"golang.org/x/sys/unix"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

type routeWatcher struct {
	classify func(string) connectivity.Transport
}

// NewRouteWatcher creates a macOS-specific watcher using AF_ROUTE sockets.
func NewRouteWatcher() Watcher {
	return &routeWatcher{classify: platformClassify}
}

func (w *routeWatcher) Name() string {
	return KindRoute
}

// Active looks up the unscoped default route, IPv4 before IPv6, and falls
// back to a scoped default route when the unscoped one is a tunnel.
func (w *routeWatcher) Active(ctx context.Context) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}

	rib, err := route.FetchRIB(unix.AF_UNSPEC, route.RIBTypeRoute, 0)
	if err != nil {
		return Route{}, fmt.Errorf("fetch routing table: %w", err)
	}
	msgs, err := route.ParseRIB(route.RIBTypeRoute, rib)
	if err != nil {
		return Route{}, fmt.Errorf("parse routing table: %w", err)
	}

	// A full-tunnel VPN owns the unscoped default route; the physical link's
	// default is then only present as a scoped route.
	var v6, scoped *Route
	for _, msg := range msgs {
		rm, ok := msg.(*route.RouteMessage)
		if !ok {
			continue
		}
		if rm.Flags&unix.RTF_UP == 0 || rm.Flags&unix.RTF_GATEWAY == 0 {
			continue
		}
		isV4, isDefault := defaultDestination(rm.Addrs)
		if !isDefault {
			continue
		}

		iface, err := net.InterfaceByIndex(rm.Index)
		if err != nil || iface.Flags&net.FlagUp == 0 {
			continue
		}
		t := w.classify(iface.Name)
		if t == connectivity.None {
			continue
		}

		r := Route{Interface: iface.Name, Transport: t}
		if rm.Flags&unix.RTF_IFSCOPE != 0 {
			if scoped == nil {
				scoped = &r
			}
			continue
		}
		if isV4 {
			return r, nil
		}
		if v6 == nil {
			v6 = &r
		}
	}
	if v6 != nil {
		return *v6, nil
	}
	if scoped != nil {
		return *scoped, nil
	}
	return Route{}, nil
}

func (w *routeWatcher) Watch(ctx context.Context, notify func()) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("open route socket: %w", err)
	}

	// Close socket when context is cancelled
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("Error reading from route socket")
				continue
			}
		}

		// bytes 0-1 msglen, byte 2 version, byte 3 type
		if n < 4 {
			continue
		}

		switch msgType := int(buf[3]); msgType {
		case unix.RTM_ADD, unix.RTM_DELETE, unix.RTM_CHANGE,
			unix.RTM_IFINFO, unix.RTM_NEWADDR, unix.RTM_DELADDR:
			log.WithField("msgType", msgType).Trace("Received routing event")
			notify()
		}
	}
}

func defaultDestination(addrs []route.Addr) (isV4, isDefault bool) {
	if len(addrs) <= unix.RTAX_DST {
		return false, false
	}
	switch a := addrs[unix.RTAX_DST].(type) {
	case *route.Inet4Addr:
		return true, a.IP == [4]byte{}
	case *route.Inet6Addr:
		return false, a.IP == [16]byte{}
	}
	return false, false
}
