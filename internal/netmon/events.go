package netmon

import (
	"fmt"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

// Route names the interface that currently carries the host's traffic. The
// zero Route means no usable network.
type Route struct {
	Interface string
	Transport connectivity.Transport
}

func (r Route) String() string {
	if r.Interface == "" {
		return r.Transport.String()
	}
	return fmt.Sprintf("%s (%s)", r.Interface, r.Transport)
}
