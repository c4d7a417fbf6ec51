package netmon

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher(KindPoll, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindPoll, w.Name())

	w, err = NewWatcher(KindNetworkManager, 0)
	require.NoError(t, err)
	assert.Equal(t, KindNetworkManager, w.Name())

	_, err = NewWatcher("carrier-pigeon", 0)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestNewWatcher_Platform(t *testing.T) {
	auto, err := NewWatcher(KindAuto, time.Second)
	require.NoError(t, err)

	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, KindNetlink, auto.Name())
		_, err = NewWatcher(KindRoute, 0)
		assert.ErrorIs(t, err, ErrUnsupported)
	case "darwin":
		assert.Equal(t, KindRoute, auto.Name())
		_, err = NewWatcher(KindNetlink, 0)
		assert.ErrorIs(t, err, ErrUnsupported)
	default:
		assert.Equal(t, KindPoll, auto.Name())
	}
}
