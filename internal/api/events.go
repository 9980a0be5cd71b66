package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/miradorstack/log-console/internal/dashboard"
	"github.com/miradorstack/log-console/internal/session"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
	eventPongWait     = eventPingInterval + 10*time.Second
)

// snapshotEvent is the first message on a new stream.
type snapshotEvent struct {
	Dashboard dashboard.View `json:"dashboard"`
	Assistant assistantView  `json:"assistant"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.origins.allows(r.Header.Get("Origin"))
		},
	}
}

// events streams session events over a websocket until either side goes away.
func (h *Handler) events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.Events.Subscribe()
	defer s.Events.Unsubscribe(sub.ID)

	// Reader: only control frames are expected; any read error ends the stream.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first := session.Event{
		Type: "snapshot",
		At:   time.Now().UTC(),
		Data: snapshotEvent{
			Dashboard: s.Dashboard.View(),
			Assistant: assistantView{
				PanelOpen: s.PanelOpen(),
				State:     s.Assistant.State(),
				Turns:     s.Conversation.Turns(),
			},
		},
	}
	if err := h.writeEvent(conn, first); err != nil {
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(eventWriteTimeout))
				return
			}
			if err := h.writeEvent(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev session.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("websocket write failed", slog.String("type", ev.Type), slog.Any("error", err))
		return err
	}
	return nil
}
