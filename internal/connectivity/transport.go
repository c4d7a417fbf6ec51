// Package connectivity tracks whether the host is online and which transport
// carries its traffic, and tells registered listeners when that changes.
package connectivity

import (
	"fmt"
	"strings"
)

// Transport is the link layer carrying the active network.
type Transport int

const (
	None Transport = iota
	Cellular
	WiFi
	Ethernet
)

func (t Transport) String() string {
	switch t {
	case None:
		return "NONE"
	case Cellular:
		return "CELLULAR"
	case WiFi:
		return "WIFI"
	case Ethernet:
		return "ETHERNET"
	default:
		return "INVALID TRANSPORT"
	}
}

func (t Transport) MarshalText() ([]byte, error) {
	if t < None || t > Ethernet {
		return nil, fmt.Errorf("invalid transport %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Transport) UnmarshalText(b []byte) error {
	v, err := ParseTransport(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTransport accepts the String form, case-insensitively.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return None, nil
	case "CELLULAR":
		return Cellular, nil
	case "WIFI":
		return WiFi, nil
	case "ETHERNET":
		return Ethernet, nil
	default:
		return None, fmt.Errorf("unknown transport %q", s)
	}
}

// State is the binary online/offline classification of a Transport.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

func (s State) MarshalText() ([]byte, error) {
	if s != Offline && s != Online {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "OFFLINE":
		*s = Offline
	case "ONLINE":
		*s = Online
	default:
		return fmt.Errorf("unknown state %q", string(b))
	}
	return nil
}

// StateOf derives the state from a transport: online iff transport is not None.
func StateOf(t Transport) State {
	if t == None {
		return Offline
	}
	return Online
}

// Status is the externally visible (state, transport) pair.
type Status struct {
	State     State     `json:"state"`
	Transport Transport `json:"transport"`
}

func (s Status) String() string {
	return fmt.Sprintf("%s via %s", s.State, s.Transport)
}
