package kafka

import "time"

// Events published BY Lineup Service

type ParticipantJoinedEvent struct {
	SessionCode   string    `json:"session_code"`
	StreamerID    int64     `json:"streamer_id"`
	ViewerID      int64     `json:"viewer_id"`
	ParticipantID int64     `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	JoinedAt      time.Time `json:"joined_at"`
	Timestamp     time.Time `json:"timestamp"`
}

type ParticipantLeftEvent struct {
	SessionCode   string    `json:"session_code"`
	StreamerID    int64     `json:"streamer_id"`
	ViewerID      int64     `json:"viewer_id"`
	ParticipantID int64     `json:"participant_id"`
	Reason        string    `json:"reason"` // left, kicked, timeout, disconnected
	LeftAt        time.Time `json:"left_at"`
	Timestamp     time.Time `json:"timestamp"`
}

type SessionClosedEvent struct {
	SessionCode  string    `json:"session_code"`
	StreamerID   int64     `json:"streamer_id"`
	Participants int       `json:"participants"`
	ClosedAt     time.Time `json:"closed_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// Events consumed BY Lineup Service (from the live status poller)

type StreamLiveEndedEvent struct {
	StreamerID int64     `json:"streamer_id"`
	EndedAt    time.Time `json:"ended_at"`
	Timestamp  time.Time `json:"timestamp"`
}
