package server

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aegis-agents/yieldrisk/internal/escrow"
	"github.com/aegis-agents/yieldrisk/internal/registry"
	"github.com/aegis-agents/yieldrisk/internal/reputation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSEvent is the envelope streamed to WebSocket subscribers.
type WSEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleEvents handles GET /api/events — upgrades to WebSocket and streams
// ledger events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allowIP(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.feed.Subscribe()
	defer cancel()

	// Drain client frames to notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(WSEvent{Type: eventName(ev), Payload: ev}); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket write error: %v", err)
				}
				return
			}
		}
	}
}

// eventName maps ledger event types to wire names.
func eventName(ev any) string {
	switch ev.(type) {
	case escrow.ServiceRequested:
		return "service_requested"
	case escrow.ServiceCompleted:
		return "service_completed"
	case escrow.EscrowReleased:
		return "escrow_released"
	case escrow.FeeUpdated:
		return "fee_updated"
	case escrow.TimeoutUpdated:
		return "timeout_updated"
	case reputation.NewFeedback:
		return "new_feedback"
	case registry.ValidationRequest:
		return "validation_request"
	case registry.ValidationResponse:
		return "validation_response"
	default:
		return "unknown"
	}
}
