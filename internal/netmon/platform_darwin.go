//go:build darwin

package netmon

import "time"

func newDefaultWatcher(time.Duration) Watcher {
	return NewRouteWatcher()
}

func newNativeWatcher(kind string) (Watcher, error) {
	if kind == KindRoute {
		return NewRouteWatcher(), nil
	}
	return nil, ErrUnsupported
}
