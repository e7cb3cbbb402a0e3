package models

import "time"

type Participant struct {
	ID          int64             `json:"id"`
	SessionCode string            `json:"session_code"`
	ViewerID    int64             `json:"viewer_id"`
	Nickname    string            `json:"nickname"`
	Status      ParticipantStatus `json:"status"`
	Fixed       bool              `json:"fixed"`
	Round       int               `json:"round"`
	JoinedAt    time.Time         `json:"joined_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "PENDING"
	ParticipantStatusApproved ParticipantStatus = "APPROVED"
	ParticipantStatusLeft     ParticipantStatus = "LEFT"
	ParticipantStatusRejected ParticipantStatus = "REJECTED"
)

// Order is the status rank used by the lineup comparator; lower sorts first.
func (s ParticipantStatus) Order() int {
	switch s {
	case ParticipantStatusApproved:
		return 1
	case ParticipantStatusPending:
		return 2
	case ParticipantStatusLeft:
		return 3
	case ParticipantStatusRejected:
		return 4
	default:
		return 5
	}
}

var participantTransitions = map[ParticipantStatus][]ParticipantStatus{
	ParticipantStatusPending:  {ParticipantStatusApproved, ParticipantStatusLeft, ParticipantStatusRejected},
	ParticipantStatusApproved: {ParticipantStatusLeft, ParticipantStatusRejected},
}

func (s ParticipantStatus) CanTransitionTo(next ParticipantStatus) bool {
	for _, allowed := range participantTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ParticipantStatus) IsTerminal() bool {
	return s == ParticipantStatusLeft || s == ParticipantStatusRejected
}

func (p *Participant) IsActive() bool {
	return !p.Status.IsTerminal()
}

// OrderEntry returns the ranking value the lineup queue stores for this participant.
func (p *Participant) OrderEntry() ParticipantOrder {
	return ParticipantOrder{
		Fixed:         p.Fixed,
		Status:        p.Status,
		ParticipantID: p.ID,
		ViewerID:      p.ViewerID,
		Round:         p.Round,
		Nickname:      p.Nickname,
	}
}
