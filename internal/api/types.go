package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

// TransitionEvent is what /ws/events streams to clients.
type TransitionEvent struct {
	ID        string                 `json:"id"`
	State     connectivity.State     `json:"state"`
	Transport connectivity.Transport `json:"transport"`
	Time      time.Time              `json:"time"`
	// Snapshot marks the first message of a stream, which carries the
	// status at subscription time rather than a transition.
	Snapshot bool `json:"snapshot,omitempty"`
}

func newTransitionEvent(status connectivity.Status, snapshot bool) TransitionEvent {
	return TransitionEvent{
		ID:        uuid.NewString(),
		State:     status.State,
		Transport: status.Transport,
		Time:      time.Now().UTC(),
		Snapshot:  snapshot,
	}
}
