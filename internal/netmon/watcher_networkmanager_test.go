package netmon

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

func TestTransportForConnectionType(t *testing.T) {
	assert.Equal(t, connectivity.None, transportForConnectionType(""))
	assert.Equal(t, connectivity.WiFi, transportForConnectionType("802-11-wireless"))
	assert.Equal(t, connectivity.Ethernet, transportForConnectionType("802-3-ethernet"))
	assert.Equal(t, connectivity.Cellular, transportForConnectionType("gsm"))
	assert.Equal(t, connectivity.Cellular, transportForConnectionType("cdma"))
	assert.Equal(t, connectivity.Ethernet, transportForConnectionType("vpn"))
	assert.Equal(t, connectivity.Ethernet, transportForConnectionType("bridge"))
}

func TestNetworkManagerWatcher_BusUnavailable(t *testing.T) {
	busErr := errors.New("no system bus")
	w := &nmWatcher{bus: func() (*dbus.Conn, error) { return nil, busErr }}

	_, err := w.Active(context.Background())
	assert.ErrorIs(t, err, busErr)

	err = w.Watch(context.Background(), func() {})
	assert.ErrorIs(t, err, busErr)

	// An unreachable bus reads as offline through the Service.
	got, err := NewService(w).Current(context.Background())
	assert.Error(t, err)
	assert.Equal(t, connectivity.None, got)
}

// fakeNMObject answers Properties.Get from a map keyed "interface.property".
// Unset methods of the embedded BusObject panic if called.
type fakeNMObject struct {
	dbus.BusObject
	props map[string]interface{}
	calls *[]string
}

func (o *fakeNMObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	key := args[0].(string) + "." + args[1].(string)
	*o.calls = append(*o.calls, key)
	v, ok := o.props[key]
	if !ok {
		return &dbus.Call{Err: errors.New("no such property: " + key)}
	}
	return &dbus.Call{Body: []interface{}{dbus.MakeVariant(v)}}
}

// fakeNM is a NetworkManager object tree with one active connection and one
// device.
type fakeNM struct {
	objects map[dbus.ObjectPath]map[string]interface{}
	calls   []string
}

func newFakeNM(state uint32, connType string) *fakeNM {
	return &fakeNM{objects: map[dbus.ObjectPath]map[string]interface{}{
		nmPath: {
			nmService + ".State":                 state,
			nmService + ".PrimaryConnectionType": connType,
			nmService + ".PrimaryConnection":     dbus.ObjectPath("/org/freedesktop/NetworkManager/ActiveConnection/3"),
		},
		"/org/freedesktop/NetworkManager/ActiveConnection/3": {
			nmActiveConnection + ".Devices": []dbus.ObjectPath{"/org/freedesktop/NetworkManager/Devices/2"},
		},
		"/org/freedesktop/NetworkManager/Devices/2": {
			nmDevice + ".Interface": "wlp2s0",
		},
	}}
}

func (f *fakeNM) watcher() *nmWatcher {
	return &nmWatcher{
		bus: func() (*dbus.Conn, error) { return nil, errors.New("bus must not be used") },
		objects: func(path dbus.ObjectPath) dbus.BusObject {
			return &fakeNMObject{props: f.objects[path], calls: &f.calls}
		},
	}
}

func TestNetworkManagerWatcher_ActiveConnected(t *testing.T) {
	nm := newFakeNM(70, "802-11-wireless")

	r, err := nm.watcher().Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Route{Interface: "wlp2s0", Transport: connectivity.WiFi}, r)
}

func TestNetworkManagerWatcher_ActiveConnectedSite(t *testing.T) {
	nm := newFakeNM(nmStateConnectedSite, "gsm")

	r, err := nm.watcher().Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, connectivity.Cellular, r.Transport)
	assert.Equal(t, "wlp2s0", r.Interface)
}

func TestNetworkManagerWatcher_ActiveBelowConnectedSite(t *testing.T) {
	for _, state := range []uint32{10, 20, 40, 50} {
		nm := newFakeNM(state, "802-3-ethernet")

		r, err := nm.watcher().Active(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Route{}, r, "state %d", state)
		// Nothing past State is read.
		assert.Equal(t, []string{nmService + ".State"}, nm.calls)
	}
}

func TestNetworkManagerWatcher_ActiveNoPrimaryConnection(t *testing.T) {
	nm := newFakeNM(70, "802-3-ethernet")
	nm.objects[nmPath][nmService+".PrimaryConnection"] = dbus.ObjectPath("/")

	r, err := nm.watcher().Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Route{Transport: connectivity.Ethernet}, r)
}

func TestNetworkManagerWatcher_ActiveDeviceUnreadable(t *testing.T) {
	nm := newFakeNM(70, "802-3-ethernet")
	delete(nm.objects, "/org/freedesktop/NetworkManager/Devices/2")

	r, err := nm.watcher().Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Route{Transport: connectivity.Ethernet}, r)
}

func TestNetworkManagerWatcher_ActiveNoConnectionType(t *testing.T) {
	nm := newFakeNM(70, "")

	r, err := nm.watcher().Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Route{}, r)
}

func TestNetworkManagerWatcher_ActiveStateUnreadable(t *testing.T) {
	nm := newFakeNM(70, "802-3-ethernet")
	delete(nm.objects[nmPath], nmService+".State")

	_, err := nm.watcher().Active(context.Background())
	assert.ErrorContains(t, err, "State")
}
