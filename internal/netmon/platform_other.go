//go:build !linux && !darwin

package netmon

import "time"

func newDefaultWatcher(pollInterval time.Duration) Watcher {
	return NewPollWatcher(pollInterval)
}

func newNativeWatcher(string) (Watcher, error) {
	return nil, ErrUnsupported
}
