package netmon

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

const (
	nmService          = "org.freedesktop.NetworkManager"
	nmPath             = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmActiveConnection = "org.freedesktop.NetworkManager.Connection.Active"
	nmDevice           = "org.freedesktop.NetworkManager.Device"
	dbusProperties     = "org.freedesktop.DBus.Properties"

	// NM_STATE_CONNECTED_SITE; below it there is no default route.
	nmStateConnectedSite = 60
)

// objectFunc resolves a NetworkManager object path on the bus.
type objectFunc func(path dbus.ObjectPath) dbus.BusObject

type nmWatcher struct {
	bus func() (*dbus.Conn, error)
	// objects replaces lookups on the bus connection when set.
	objects objectFunc
}

// NewNetworkManagerWatcher follows NetworkManager's primary connection over
// the system bus.
func NewNetworkManagerWatcher() Watcher {
	return &nmWatcher{bus: dbus.SystemBus}
}

func (w *nmWatcher) Name() string {
	return KindNetworkManager
}

func (w *nmWatcher) lookup() (objectFunc, error) {
	if w.objects != nil {
		return w.objects, nil
	}
	conn, err := w.bus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return func(path dbus.ObjectPath) dbus.BusObject {
		return conn.Object(nmService, path)
	}, nil
}

func (w *nmWatcher) Active(ctx context.Context) (Route, error) {
	object, err := w.lookup()
	if err != nil {
		return Route{}, err
	}
	nm := object(nmPath)

	var state uint32
	if err := getProperty(ctx, nm, nmService, "State", &state); err != nil {
		return Route{}, err
	}
	if state < nmStateConnectedSite {
		return Route{}, nil
	}

	var connType string
	if err := getProperty(ctx, nm, nmService, "PrimaryConnectionType", &connType); err != nil {
		return Route{}, err
	}

	r := Route{Transport: transportForConnectionType(connType)}
	if r.Transport == connectivity.None {
		return r, nil
	}

	var primary dbus.ObjectPath
	if err := getProperty(ctx, nm, nmService, "PrimaryConnection", &primary); err == nil && primary != "/" {
		r.Interface = primaryInterface(ctx, object, primary)
	}
	return r, nil
}

func (w *nmWatcher) Watch(ctx context.Context, notify func()) error {
	conn, err := w.bus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(nmPath),
			dbus.WithMatchInterface(dbusProperties),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchObjectPath(nmPath),
			dbus.WithMatchInterface(nmService),
			dbus.WithMatchMember("StateChanged"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignalContext(ctx, m...); err != nil {
			return fmt.Errorf("add match signal: %w", err)
		}
		defer func(m []dbus.MatchOption) {
			_ = conn.RemoveMatchSignal(m...)
		}(m)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return errors.New("system bus signal channel closed")
			}
			if sig.Path != nmPath {
				continue
			}
			log.WithField("signal", sig.Name).Trace("NetworkManager signal")
			notify()
		}
	}
}

// primaryInterface returns the kernel name of the first device of the
// active connection at path, or "" if it cannot be read.
func primaryInterface(ctx context.Context, object objectFunc, path dbus.ObjectPath) string {
	var devices []dbus.ObjectPath
	if err := getProperty(ctx, object(path), nmActiveConnection, "Devices", &devices); err != nil || len(devices) == 0 {
		return ""
	}
	var name string
	if err := getProperty(ctx, object(devices[0]), nmDevice, "Interface", &name); err != nil {
		return ""
	}
	return name
}

func getProperty(ctx context.Context, obj dbus.BusObject, iface, name string, out interface{}) error {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, dbusProperties+".Get", 0, iface, name).Store(&v)
	if err != nil {
		return fmt.Errorf("get %s.%s: %w", iface, name, err)
	}
	if err := dbus.Store([]interface{}{v.Value()}, out); err != nil {
		return fmt.Errorf("decode %s.%s: %w", iface, name, err)
	}
	return nil
}

// transportForConnectionType maps NetworkManager connection types. VPNs and
// other overlays on the primary connection are treated as wired.
func transportForConnectionType(connType string) connectivity.Transport {
	switch connType {
	case "":
		return connectivity.None
	case "802-11-wireless", "wifi-p2p", "olpc-mesh":
		return connectivity.WiFi
	case "gsm", "cdma", "bluetooth", "wwan":
		return connectivity.Cellular
	default:
		return connectivity.Ethernet
	}
}
