package timeout

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agencyhub/portal/internal/platform/httpx"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// The zero CheckOrigin only accepts same-origin upgrades, which is what the page
// script does.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Inbound message types on the countdown stream.
const (
	MessageExtend   = "extend"
	MessageActivity = "activity"
)

type inbound struct {
	Type string `json:"type"`
}

// stream pushes the monitor state on every change and accepts extend and activity
// messages from the page.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("session stream upgrade", slog.Any("error", err))
		return
	}
	defer conn.Close()

	states, cancel := m.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go h.readPump(conn, m, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case st := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
			if st.Closed() {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump is the only reader of conn.
func (h *Handler) readPump(conn *websocket.Conn, m *Monitor, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("session stream closed", slog.Any("error", err))
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MessageExtend:
			// Extend publishes the new state itself; failures surface as a closed state.
			_, _ = m.Extend()
		case MessageActivity:
			m.RecordActivity()
		}
	}
}
