package netmon

import (
	"strings"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

var (
	wifiPrefixes     = []string{"wl", "wifi", "ath", "ra", "ap"}
	cellularPrefixes = []string{"wwan", "rmnet", "ccmni", "pdp_ip", "ppp", "qmimux", "mhi", "usb"}
	ignoredPrefixes  = []string{
		"docker", "veth", "virbr", "dummy", "gif", "stf", "awdl", "llw", "anpi", "bridge100",
		"tun", "tap", "utun", "wg", "ipsec", "gre", "sit", "tailscale",
	}
)

// Classify maps an interface name to a transport using common naming
// conventions. Loopback, tunnels and virtual interfaces map to None so the
// route underneath them is used instead. Anything else unrecognised that
// carries traffic is treated as wired.
func Classify(name string) connectivity.Transport {
	if name == "" {
		return connectivity.None
	}
	lower := strings.ToLower(name)
	switch {
	case isLoopback(lower), hasAnyPrefix(lower, ignoredPrefixes):
		return connectivity.None
	case hasAnyPrefix(lower, cellularPrefixes):
		return connectivity.Cellular
	case hasAnyPrefix(lower, wifiPrefixes):
		return connectivity.WiFi
	default:
		return connectivity.Ethernet
	}
}

// isLoopback matches "lo" and "lo<N>" but not names such as "lowpan0".
func isLoopback(name string) bool {
	rest, ok := strings.CutPrefix(name, "lo")
	if !ok {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
