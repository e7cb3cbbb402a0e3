package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	repository "github.com/vogiaan1904/ticketbottle-lineup/internal/repository/redis"
)

const maxCodeAttempts = 5

func (s *lineupService) OpenSession(ctx context.Context, in OpenSessionInput) (*models.Session, error) {
	if s.closing.Load() {
		return nil, ErrShuttingDown
	}

	size := in.MaxGroupSize
	if size == 0 {
		size = s.cfg.DefaultMaxGroupSize
	}
	if size < 0 {
		return nil, ErrInvalidGroupSize
	}

	now := s.clock.Now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		ss := &models.Session{
			Code:                  s.uuid.NewSessionCode(),
			StreamerID:            in.StreamerID,
			Status:                models.SessionStatusOpen,
			MaxGroupSize:          size,
			GameParticipationCode: in.GameParticipationCode,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		err := s.ssRepo.Create(ctx, ss)
		switch {
		case err == nil:
			s.l.Infof(ctx, "Session %s opened by streamer %d", ss.Code, ss.StreamerID)
			return ss, nil
		case errors.Is(err, repository.ErrOpenSessionExists):
			return nil, ErrSessionAlreadyOpen
		case errors.Is(err, repository.ErrCodeTaken):
			continue
		default:
			s.l.Errorf(ctx, "service.lineupService.OpenSession: %v", err)
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to allocate a session code after %d attempts", maxCodeAttempts)
}

func (s *lineupService) Close(ctx context.Context, sessionCode string) error {
	var (
		ss   *models.Session
		left int
	)
	err := s.locked(sessionCode, func() error {
		var err error
		ss, err = s.openSessionByCode(ctx, sessionCode)
		if err != nil {
			return err
		}

		// Participants go first: if that fails the session stays open and
		// Close can be retried.
		now := s.clock.Now()
		left, err = s.pRepo.MarkAllLeft(ctx, sessionCode, now)
		if err != nil {
			s.l.Errorf(ctx, "service.lineupService.Close.MarkAllLeft: %v", err)
			return fmt.Errorf("failed to mark participants left: %w", err)
		}

		ss.Close(now)
		if err := s.ssRepo.Save(ctx, ss); err != nil {
			s.l.Errorf(ctx, "service.lineupService.Close.Save: %v", err)
			return fmt.Errorf("failed to close session: %w", err)
		}

		for _, o := range s.store.SortedSnapshot(sessionCode) {
			s.tracker.Forget(o.ViewerID, sessionCode)
		}
		s.store.RemoveSession(sessionCode)
		return nil
	})
	if err != nil {
		return err
	}

	closed := models.NewEvent(models.EventSessionClosed, "the streamer closed this session", map[string]string{
		"session_code": sessionCode,
	})
	s.engine.SendToSession(ctx, sessionCode, closed)
	for key := range s.viewers.GetAll(sessionCode) {
		s.tracker.Forget(key.MemberID, sessionCode)
	}
	n := s.viewers.UnsubscribeGroup(sessionCode)
	s.engine.SendToStreamer(ctx, ss.StreamerID, closed)

	if err := s.prod.PublishSessionClosed(ctx, kafka.SessionClosedEvent{
		SessionCode:  ss.Code,
		StreamerID:   ss.StreamerID,
		Participants: left,
		ClosedAt:     *ss.ClosedAt,
	}); err != nil {
		s.l.Errorf(ctx, "service.lineupService.Close: %v", err)
	}

	s.l.Infof(ctx, "Session %s closed: %d participants left, %d connections released", sessionCode, left, n)

	return nil
}

func (s *lineupService) CloseByStreamer(ctx context.Context, streamerID int64) error {
	ss, err := s.openSessionByStreamer(ctx, streamerID)
	if err != nil {
		return err
	}
	return s.Close(ctx, ss.Code)
}

func (s *lineupService) Snapshot(ctx context.Context, sessionCode string) (*SnapshotOutput, error) {
	ss, err := s.openSessionByCode(ctx, sessionCode)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ss), nil
}
