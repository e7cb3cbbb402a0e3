package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/response"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/util"
)

type StreamConfig struct {
	PingInterval time.Duration
	Buffer       int
}

type HTTPHandler struct {
	svc       service.LineupService
	l         logger.Logger
	validator *validator.Validate
	stream    StreamConfig
}

func NewHTTPHandler(svc service.LineupService, l logger.Logger, stream StreamConfig) *HTTPHandler {
	if stream.PingInterval <= 0 {
		stream.PingInterval = 5 * time.Second
	}
	if stream.Buffer <= 0 {
		stream.Buffer = 16
	}
	return &HTTPHandler{
		svc:       svc,
		l:         l,
		validator: validator.New(),
		stream:    stream,
	}
}

// HealthCheck handles health check requests
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lineup-service",
		"time":    util.TimeToISO8601Str(time.Now()),
	})
}

// OpenSession opens a lineup for the authenticated streamer.
func (h *HTTPHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var in service.OpenSessionInput
	if !h.decode(w, r, &in) {
		return
	}
	in.StreamerID = h.memberID(r)

	ss, err := h.svc.OpenSession(r.Context(), in)
	if err != nil {
		h.fail(w, r, "OpenSession", err)
		return
	}

	response.OK(w, http.StatusCreated, ss)
}

func (h *HTTPHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseByStreamer(r.Context(), h.memberID(r)); err != nil {
		h.fail(w, r, "CloseSession", err)
		return
	}
	response.OK(w, http.StatusOK, nil)
}

func (h *HTTPHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Snapshot(r.Context(), sessionCode(r))
	if err != nil {
		h.fail(w, r, "Snapshot", err)
		return
	}
	response.OK(w, http.StatusOK, out)
}

func (h *HTTPHandler) Join(w http.ResponseWriter, r *http.Request) {
	var in service.JoinInput
	if !h.decode(w, r, &in) {
		return
	}
	in.SessionCode = sessionCode(r)
	in.ViewerID = h.memberID(r)

	out, err := h.svc.Join(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Join", err)
		return
	}

	statusCode := http.StatusOK
	if out.Created {
		statusCode = http.StatusCreated
	}
	response.OK(w, statusCode, out)
}

func (h *HTTPHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Leave(r.Context(), sessionCode(r), h.memberID(r)); err != nil {
		h.fail(w, r, "Leave", err)
		return
	}
	response.OK(w, http.StatusOK, nil)
}

func (h *HTTPHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	code := sessionCode(r)
	if err := h.svc.TouchHeartbeat(r.Context(), h.memberID(r), code); err != nil {
		h.fail(w, r, "Heartbeat", err)
		return
	}
	response.OK(w, http.StatusOK, map[string]string{
		"session_code": code,
		"received_at":  util.TimeToISO8601Str(time.Now()),
	})
}

func (h *HTTPHandler) TogglePick(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewerID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.TogglePick(r.Context(), h.memberID(r), viewerID)
	if err != nil {
		h.fail(w, r, "TogglePick", err)
		return
	}
	response.OK(w, http.StatusOK, p)
}

func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewerID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Approve(r.Context(), h.memberID(r), viewerID)
	if err != nil {
		h.fail(w, r, "Approve", err)
		return
	}
	response.OK(w, http.StatusOK, p)
}

func (h *HTTPHandler) Kick(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewerID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Kick(r.Context(), h.memberID(r), viewerID); err != nil {
		h.fail(w, r, "Kick", err)
		return
	}
	response.OK(w, http.StatusOK, nil)
}

func (h *HTTPHandler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.AdvanceRound(r.Context(), h.memberID(r))
	if err != nil {
		h.fail(w, r, "AdvanceRound", err)
		return
	}
	response.OK(w, http.StatusOK, out)
}

// Helper functions

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.l.Debugf(r.Context(), "delivery.http.decode: %v", err)
		response.Error(w, errInvalidRequest)
		return false
	}

	if err := h.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			response.ValidationError(w, errValidationFailed, details)
			return false
		}
		response.Error(w, errValidationFailed)
		return false
	}

	return true
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	mapped := mapHTTPError(err)
	if mapped == err {
		h.l.Errorf(r.Context(), "delivery.http.HTTPHandler.%s: %v", op, err)
	}
	response.Error(w, mapped)
}

func (h *HTTPHandler) memberID(r *http.Request) int64 {
	id, _ := MemberIDFromContext(r.Context())
	return id
}

func (h *HTTPHandler) viewerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "viewerId"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, errInvalidViewerID)
		return 0, false
	}
	return id, true
}

func sessionCode(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "code"))
}
