package models

import "time"

type EventType string

const (
	EventConnected          EventType = "CONNECTED"
	EventConnectionReplaced EventType = "CONNECTION_REPLACED"
	EventOrderUpdated       EventType = "ORDER_UPDATED"
	EventParticipantJoined  EventType = "PARTICIPANT_JOINED"
	EventParticipantLeft    EventType = "PARTICIPANT_LEFT"
	EventParticipantFixed   EventType = "PARTICIPANT_FIXED"
	EventParticipantKicked  EventType = "PARTICIPANT_KICKED"
	EventParticipantStatus  EventType = "PARTICIPANT_STATUS"
	EventRoundAdvanced      EventType = "ROUND_ADVANCED"
	EventQueueSnapshot      EventType = "QUEUE_SNAPSHOT"
	EventSessionClosed      EventType = "SESSION_CLOSED"
)

// Event is the logical frame pushed over a connection.
type Event struct {
	Type    EventType `json:"event_type"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

func NewEvent(t EventType, message string, data any) Event {
	return Event{
		Type:    t,
		Message: message,
		Data:    data,
		SentAt:  time.Now(),
	}
}

// OrderPayload is what one viewer sees about their own place in the lineup.
type OrderPayload struct {
	Order                 int               `json:"order"`
	Round                 int               `json:"round"`
	Fixed                 bool              `json:"fixed"`
	Status                ParticipantStatus `json:"status"`
	ViewerID              int64             `json:"viewer_id"`
	ParticipantID         int64             `json:"participant_id"`
	Nickname              string            `json:"nickname"`
	IsReadyToPlay         bool              `json:"is_ready_to_play"`
	GameParticipationCode string            `json:"game_participation_code,omitempty"`
}

// NewOrderPayload builds the payload for the entry at the given 1-based order.
// The game participation code is only revealed inside the current group.
func NewOrderPayload(order int, o ParticipantOrder, s *Session) OrderPayload {
	p := OrderPayload{
		Order:         order,
		Round:         o.Round,
		Fixed:         o.Fixed,
		Status:        o.Status,
		ViewerID:      o.ViewerID,
		ParticipantID: o.ParticipantID,
		Nickname:      o.Nickname,
	}
	if s != nil && order <= s.MaxGroupSize {
		p.IsReadyToPlay = true
		p.GameParticipationCode = s.GameParticipationCode
	}
	return p
}

// StreamerNotice is the one-off payload sent to the streamer about a single viewer.
type StreamerNotice struct {
	ViewerID      int64  `json:"viewer_id"`
	ParticipantID int64  `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Fixed         bool   `json:"fixed"`
	Order         int    `json:"order,omitempty"`
}
