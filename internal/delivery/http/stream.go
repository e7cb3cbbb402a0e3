package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/response"
)

// ViewerEvents streams the viewer's lineup events over server-sent events.
// A nickname query parameter joins the lineup as part of subscribing.
func (h *HTTPHandler) ViewerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, errNoStreaming)
		return
	}

	sender := connection.NewStreamSender(h.stream.Buffer)
	conn, err := h.svc.SubscribeViewer(r.Context(), service.SubscribeViewerInput{
		SessionCode: sessionCode(r),
		ViewerID:    h.memberID(r),
		Nickname:    r.URL.Query().Get("nickname"),
		Sender:      sender,
	})
	if err != nil {
		h.fail(w, r, "ViewerEvents", err)
		return
	}

	h.serveSSE(w, r, flusher, conn, sender)
}

func (h *HTTPHandler) StreamerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, errNoStreaming)
		return
	}

	sender := connection.NewStreamSender(h.stream.Buffer)
	conn, err := h.svc.SubscribeStreamer(r.Context(), h.memberID(r), sender)
	if err != nil {
		h.fail(w, r, "StreamerEvents", err)
		return
	}

	h.serveSSE(w, r, flusher, conn, sender)
}

// serveSSE pumps sender onto the response until either side ends the stream.
func (h *HTTPHandler) serveSSE(
	w http.ResponseWriter,
	r *http.Request,
	flusher http.Flusher,
	conn *connection.Connection,
	sender *connection.StreamSender,
) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(h.stream.PingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-sender.Events():
			if err := writeSSE(w, ev); err != nil {
				conn.Fail(err)
				return
			}
			flusher.Flush()

		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				conn.Fail(err)
				return
			}
			flusher.Flush()

		case <-sender.Closed():
			for _, ev := range sender.Drain() {
				if err := writeSSE(w, ev); err != nil {
					return
				}
			}
			flusher.Flush()
			return

		case <-r.Context().Done():
			conn.Complete()
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
