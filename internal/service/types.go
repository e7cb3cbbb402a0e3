package service

import (
	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

type Config struct {
	DefaultMaxGroupSize int
}

type OpenSessionInput struct {
	StreamerID            int64  `json:"-"`
	MaxGroupSize          int    `json:"max_group_size" validate:"gte=0,lte=100"`
	GameParticipationCode string `json:"game_participation_code" validate:"max=64"`
}

type JoinInput struct {
	SessionCode string `json:"-"`
	ViewerID    int64  `json:"-"`
	Nickname    string `json:"nickname" validate:"required,min=1,max=32"`
}

type JoinOutput struct {
	Participant *models.Participant `json:"participant"`
	Order       int                 `json:"order"`
	// Created is false when the viewer was already in the lineup.
	Created bool `json:"created"`
}

type SubscribeViewerInput struct {
	SessionCode string
	ViewerID    int64
	// Nickname, when set, joins the lineup before the first push.
	Nickname string
	Sender   connection.Sender
}

type SnapshotEntry struct {
	Order         int                      `json:"order"`
	Round         int                      `json:"round"`
	Fixed         bool                     `json:"fixed"`
	Status        models.ParticipantStatus `json:"status"`
	ViewerID      int64                    `json:"viewer_id"`
	ParticipantID int64                    `json:"participant_id"`
	Nickname      string                   `json:"nickname"`
	IsReadyToPlay bool                     `json:"is_ready_to_play"`
}

type SnapshotOutput struct {
	SessionCode  string          `json:"session_code"`
	StreamerID   int64           `json:"streamer_id"`
	MaxGroupSize int             `json:"max_group_size"`
	Participants []SnapshotEntry `json:"participants"`
}

type AdvanceRoundOutput struct {
	SessionCode string                    `json:"session_code"`
	Advanced    []models.ParticipantOrder `json:"advanced"`
}
