package service

import "errors"

var (
	ErrSessionNotFound     = errors.New("no open session")
	ErrSessionAlreadyOpen  = errors.New("streamer already has an open session")
	ErrParticipantNotFound = errors.New("participant not found in session")
	ErrInvalidTransition   = errors.New("invalid participant status transition")
	ErrInvalidGroupSize    = errors.New("max group size must be positive")
	ErrShuttingDown        = errors.New("service is shutting down")
)
