package models

import "time"

type Session struct {
	Code                  string        `json:"code"`
	StreamerID            int64         `json:"streamer_id"`
	Status                SessionStatus `json:"status"`
	MaxGroupSize          int           `json:"max_group_size"`
	GameParticipationCode string        `json:"game_participation_code,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
	ClosedAt              *time.Time    `json:"closed_at,omitempty"`
}

type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

func (s *Session) IsOpen() bool {
	return s.Status == SessionStatusOpen
}

// Close moves the session to its terminal state. Closing twice keeps the first ClosedAt.
func (s *Session) Close(at time.Time) {
	if s.Status == SessionStatusClosed {
		return
	}
	s.Status = SessionStatusClosed
	s.ClosedAt = &at
	s.UpdatedAt = at
}
