package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents streams lifecycle events as JSON over a websocket. Slow
// clients lose events rather than stalling the scheduler.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusNotFound, "events_disabled", "event stream is not enabled")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	websocketClients.Inc()
	defer websocketClients.Dec()

	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	// The request context does not fire after a hijack; the read loop is
	// the only disconnect signal.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
