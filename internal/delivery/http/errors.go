package http

import (
	"errors"
	"net/http"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
	pkgErrors "github.com/vogiaan1904/ticketbottle-lineup/pkg/errors"
)

var (
	errSessionNotFound     = pkgErrors.NewHTTPError("LNP001", "No open session", http.StatusNotFound)
	errParticipantNotFound = pkgErrors.NewHTTPError("LNP002", "Participant not found in session", http.StatusNotFound)
	errInvalidTransition   = pkgErrors.NewHTTPError("LNP003", "Participant status change is not allowed", http.StatusConflict)
	errSessionAlreadyOpen  = pkgErrors.NewHTTPError("LNP004", "Streamer already has an open session", http.StatusConflict)
	errInvalidGroupSize    = pkgErrors.NewHTTPError("LNP005", "Max group size must be positive", http.StatusBadRequest)
	errShuttingDown        = pkgErrors.NewHTTPError("LNP006", "Service is shutting down", http.StatusServiceUnavailable)

	errInvalidRequest   = pkgErrors.NewHTTPError("LNP007", "Invalid request body", http.StatusBadRequest)
	errValidationFailed = pkgErrors.NewHTTPError("LNP008", "Validation failed", http.StatusBadRequest)
	errUnauthorized     = pkgErrors.NewHTTPError("LNP009", "Missing or invalid token", http.StatusUnauthorized)
	errInvalidViewerID  = pkgErrors.NewHTTPError("LNP010", "Invalid viewer id", http.StatusBadRequest)
	errNoStreaming      = pkgErrors.NewHTTPError("LNP011", "Streaming unsupported", http.StatusInternalServerError)
)

func mapHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return errSessionNotFound
	case errors.Is(err, service.ErrParticipantNotFound):
		return errParticipantNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return errInvalidTransition
	case errors.Is(err, service.ErrSessionAlreadyOpen):
		return errSessionAlreadyOpen
	case errors.Is(err, service.ErrInvalidGroupSize):
		return errInvalidGroupSize
	case errors.Is(err, service.ErrShuttingDown):
		return errShuttingDown
	default:
		return err
	}
}
