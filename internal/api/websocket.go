package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// StreamEvents upgrades the request and writes one JSON TransitionEvent per
// message until the client goes away or the service closes.
func StreamEvents(s *Service, w http.ResponseWriter, r *http.Request) {
	events, unsub := s.Subscribe()
	defer unsub()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.WithError(err).Error("Failed to accept WebSocket client")
		return
	}
	defer c.CloseNow()

	// Clients only listen; CloseRead handles their close frame.
	ctx := c.CloseRead(r.Context())

	logger := log.WithField("remote", r.RemoteAddr)
	logger.Debug("WebSocket client connected")
	defer logger.Debug("WebSocket client disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				logger.WithError(err).Error("Failed to encode transition event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, b)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("Failed to write to WebSocket client")
				return
			}
		}
	}
}
