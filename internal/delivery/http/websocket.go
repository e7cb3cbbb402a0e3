package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what a viewer may send over the socket.
type clientMessage struct {
	Type string `json:"type"` // heartbeat, leave
}

// ViewerWebSocket is the WebSocket twin of ViewerEvents. Pongs and
// heartbeat messages both refresh the viewer's liveness.
func (h *HTTPHandler) ViewerWebSocket(w http.ResponseWriter, r *http.Request) {
	code := sessionCode(r)
	viewerID := h.memberID(r)

	sender := connection.NewStreamSender(h.stream.Buffer)
	conn, err := h.svc.SubscribeViewer(r.Context(), service.SubscribeViewerInput{
		SessionCode: code,
		ViewerID:    viewerID,
		Nickname:    r.URL.Query().Get("nickname"),
		Sender:      sender,
	})
	if err != nil {
		h.fail(w, r, "ViewerWebSocket", err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warnf(r.Context(), "delivery.http.ViewerWebSocket: upgrade failed: %v", err)
		conn.Fail(err)
		return
	}
	defer ws.Close()

	// The request context is not tied to a hijacked connection.
	ctx := context.WithoutCancel(r.Context())
	pongWait := 3 * h.stream.PingInterval

	go h.readPump(ctx, ws, conn, code, viewerID, pongWait)
	h.writePump(ws, conn, sender)
}

func (h *HTTPHandler) readPump(ctx context.Context, ws *websocket.Conn, conn *connection.Connection, code string, viewerID int64, pongWait time.Duration) {
	defer conn.Complete()

	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.svc.TouchHeartbeat(ctx, viewerID, code); err != nil {
			h.l.Debugf(ctx, "delivery.http.readPump: %v", err)
		}
		return nil
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debugf(ctx, "delivery.http.readPump: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "heartbeat":
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			if err := h.svc.TouchHeartbeat(ctx, viewerID, code); err != nil {
				h.l.Debugf(ctx, "delivery.http.readPump: %v", err)
			}
		case "leave":
			if err := h.svc.Leave(ctx, code, viewerID); err != nil {
				h.l.Debugf(ctx, "delivery.http.readPump: %v", err)
			}
			return
		}
	}
}

func (h *HTTPHandler) writePump(ws *websocket.Conn, conn *connection.Connection, sender *connection.StreamSender) {
	ping := time.NewTicker(h.stream.PingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-sender.Events():
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				conn.Fail(err)
				return
			}

		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Fail(err)
				return
			}

		case <-sender.Closed():
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			for _, ev := range sender.Drain() {
				if err := ws.WriteJSON(ev); err != nil {
					return
				}
			}
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed"))
			return
		}
	}
}
