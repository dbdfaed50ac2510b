package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrEthical07/roleauth/sessionsync"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 10 * time.Second
	wsMaxMessage   = 512
)

// upgrader keeps gorilla's default same-origin check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// syncMessage is what a tab receives. It is a re-check signal only.
type syncMessage struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// handleSessionEvents streams sync events for the browser's client key.
// Tabs react by calling GET /api/session.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	key, ok := existingClientKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing sync key")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := s.hub.Subscribe(key)
	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, sub, done)
}

// readPump discards client messages and closes done when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *sessionsync.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := conn.WriteJSON(syncMessage{Type: string(ev.Type), At: ev.At}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
