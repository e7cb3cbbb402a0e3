package service

import (
	"context"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/heartbeat"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

type LineupService interface {
	OpenSession(ctx context.Context, in OpenSessionInput) (*models.Session, error)
	Close(ctx context.Context, sessionCode string) error
	CloseByStreamer(ctx context.Context, streamerID int64) error
	Snapshot(ctx context.Context, sessionCode string) (*SnapshotOutput, error)

	Join(ctx context.Context, in JoinInput) (*JoinOutput, error)
	Leave(ctx context.Context, sessionCode string, viewerID int64) error
	Kick(ctx context.Context, streamerID, viewerID int64) error
	TogglePick(ctx context.Context, streamerID, viewerID int64) (*models.Participant, error)
	Approve(ctx context.Context, streamerID, viewerID int64) (*models.Participant, error)
	AdvanceRound(ctx context.Context, streamerID int64) (*AdvanceRoundOutput, error)

	SubscribeViewer(ctx context.Context, in SubscribeViewerInput) (*connection.Connection, error)
	SubscribeStreamer(ctx context.Context, streamerID int64, sender connection.Sender) (*connection.Connection, error)
	TouchHeartbeat(ctx context.Context, memberID int64, sessionCode string) error

	// HandleHeartbeatExpired treats an expired member exactly like a leave.
	HandleHeartbeatExpired(ctx context.Context, key heartbeat.Key)
	// Shutdown completes every connection, drops all queues and closes
	// every open session. It keeps going past individual failures.
	Shutdown(ctx context.Context) error
}
