//go:build linux

package netmon

import "time"

func newDefaultWatcher(time.Duration) Watcher {
	return NewNetlinkWatcher()
}

func newNativeWatcher(kind string) (Watcher, error) {
	if kind == KindNetlink {
		return NewNetlinkWatcher(), nil
	}
	return nil, ErrUnsupported
}
