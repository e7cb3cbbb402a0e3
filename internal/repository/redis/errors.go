package repository

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrOpenSessionExists = errors.New("streamer already has an open session")
	ErrCodeTaken         = errors.New("session code already in use")
)
