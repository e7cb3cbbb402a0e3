package service

import (
	"context"
	"errors"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/heartbeat"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

func (s *lineupService) SubscribeViewer(ctx context.Context, in SubscribeViewerInput) (*connection.Connection, error) {
	if s.closing.Load() {
		return nil, ErrShuttingDown
	}

	ss, err := s.openSessionByCode(ctx, in.SessionCode)
	if err != nil {
		return nil, err
	}

	conn, err := s.viewers.Subscribe(connection.ViewerKey{SessionCode: in.SessionCode, MemberID: in.ViewerID}, in.Sender)
	if err != nil {
		if errors.Is(err, connection.ErrRegistryClosed) {
			return nil, ErrShuttingDown
		}
		return nil, err
	}

	s.tracker.Touch(in.ViewerID, in.SessionCode)
	s.engine.SendToOne(ctx, in.SessionCode, in.ViewerID, models.NewEvent(models.EventConnected,
		"connected to session "+in.SessionCode, nil))

	if in.Nickname != "" {
		out, err := s.Join(ctx, JoinInput{SessionCode: in.SessionCode, ViewerID: in.ViewerID, Nickname: in.Nickname})
		if err != nil {
			conn.Close()
			s.tracker.Forget(in.ViewerID, in.SessionCode)
			return nil, err
		}
		if out.Created {
			return conn, nil
		}
	}

	if o, ok := s.store.Get(in.SessionCode, in.ViewerID); ok {
		if rank, ok := s.store.Rank(in.SessionCode, in.ViewerID); ok {
			s.engine.SendToOne(ctx, in.SessionCode, in.ViewerID,
				models.NewEvent(models.EventOrderUpdated, "", models.NewOrderPayload(rank, o, ss)))
		}
	}

	return conn, nil
}

func (s *lineupService) SubscribeStreamer(ctx context.Context, streamerID int64, sender connection.Sender) (*connection.Connection, error) {
	if s.closing.Load() {
		return nil, ErrShuttingDown
	}

	conn, err := s.strms.Subscribe(streamerID, sender)
	if err != nil {
		if errors.Is(err, connection.ErrRegistryClosed) {
			return nil, ErrShuttingDown
		}
		return nil, err
	}

	s.engine.SendToStreamer(ctx, streamerID, models.NewEvent(models.EventConnected, "connected", nil))

	ss, err := s.openSessionByStreamer(ctx, streamerID)
	switch {
	case err == nil:
		s.engine.SendToStreamer(ctx, streamerID, models.NewEvent(models.EventQueueSnapshot, "", s.snapshot(ss)))
	case !errors.Is(err, ErrSessionNotFound):
		s.l.Warnf(ctx, "service.lineupService.SubscribeStreamer: %v", err)
	}

	return conn, nil
}

func (s *lineupService) TouchHeartbeat(ctx context.Context, memberID int64, sessionCode string) error {
	if _, err := s.openSessionByCode(ctx, sessionCode); err != nil {
		return err
	}
	s.tracker.Touch(memberID, sessionCode)
	return nil
}

func (s *lineupService) HandleHeartbeatExpired(ctx context.Context, key heartbeat.Key) {
	if s.closing.Load() {
		return
	}

	err := s.leave(ctx, key.SessionCode, key.MemberID, kafka.LeftReasonTimeout)
	switch {
	case err == nil:
		s.l.Infof(ctx, "Viewer %d timed out of session %s", key.MemberID, key.SessionCode)
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrInvalidTransition):
		// Not in the lineup any more; only the connection is left to release.
		s.viewers.Unsubscribe(connection.ViewerKey{SessionCode: key.SessionCode, MemberID: key.MemberID})
		s.l.Debugf(ctx, "service.lineupService.HandleHeartbeatExpired: %v", err)
	default:
		s.l.Errorf(ctx, "service.lineupService.HandleHeartbeatExpired: %v", err)
	}
}

// onViewerClosed reconciles a viewer connection that dropped. While the
// member still has a heartbeat entry the liveness sweep decides, so a client
// can reconnect within the timeout without losing its place.
func (s *lineupService) onViewerClosed(key connection.ViewerKey, _ *connection.Connection, reason connection.CloseReason, cause error) {
	if !reason.Dropped() || s.closing.Load() {
		return
	}
	if _, ok := s.tracker.LastSeen(key.MemberID, key.SessionCode); ok {
		return
	}

	// Runs detached: this can be reached from inside a broadcast worker.
	go func() {
		ctx := context.Background()
		err := s.leave(ctx, key.SessionCode, key.MemberID, kafka.LeftReasonDisconnected)
		switch {
		case err == nil:
			s.l.Infof(ctx, "Viewer %d dropped from session %s (%s: %v)", key.MemberID, key.SessionCode, reason, cause)
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrInvalidTransition):
		default:
			s.l.Errorf(ctx, "service.lineupService.onViewerClosed: %v", err)
		}
	}()
}
