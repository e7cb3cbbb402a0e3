package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	repository "github.com/vogiaan1904/ticketbottle-lineup/internal/repository/redis"
)

func (s *lineupService) Join(ctx context.Context, in JoinInput) (*JoinOutput, error) {
	if s.closing.Load() {
		return nil, ErrShuttingDown
	}

	var (
		ss      *models.Session
		p       *models.Participant
		created bool
	)
	err := s.locked(in.SessionCode, func() error {
		var err error
		ss, err = s.openSessionByCode(ctx, in.SessionCode)
		if err != nil {
			return err
		}

		existing, err := s.pRepo.Get(ctx, in.SessionCode, in.ViewerID)
		switch {
		case err == nil && existing.IsActive():
			p = existing
			if _, ok := s.store.Get(in.SessionCode, in.ViewerID); !ok {
				s.store.Add(in.SessionCode, p.OrderEntry())
			}
			return nil
		case err == nil && existing.Status == models.ParticipantStatusRejected:
			return fmt.Errorf("%w: viewer was removed from this session", ErrInvalidTransition)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			s.l.Errorf(ctx, "service.lineupService.Join.Get: %v", err)
			return fmt.Errorf("failed to load participant: %w", err)
		}

		id, err := s.pRepo.NextID(ctx)
		if err != nil {
			return fmt.Errorf("failed to allocate participant id: %w", err)
		}

		now := s.clock.Now()
		p = &models.Participant{
			ID:          id,
			SessionCode: in.SessionCode,
			ViewerID:    in.ViewerID,
			Nickname:    in.Nickname,
			Status:      models.ParticipantStatusPending,
			JoinedAt:    now,
			UpdatedAt:   now,
		}
		if err := s.pRepo.Save(ctx, p); err != nil {
			s.l.Errorf(ctx, "service.lineupService.Join.Save: %v", err)
			return fmt.Errorf("failed to save participant: %w", err)
		}

		s.store.Add(in.SessionCode, p.OrderEntry())
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventOrderUpdated)

		notice := s.notice(ctx, ss, p)
		s.engine.SendToStreamer(ctx, ss.StreamerID, models.NewEvent(models.EventParticipantJoined,
			fmt.Sprintf("%s joined the lineup", notice.DisplayName), notice))

		if err := s.prod.PublishParticipantJoined(ctx, kafka.ParticipantJoinedEvent{
			SessionCode:   ss.Code,
			StreamerID:    ss.StreamerID,
			ViewerID:      p.ViewerID,
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			JoinedAt:      p.JoinedAt,
		}); err != nil {
			s.l.Errorf(ctx, "service.lineupService.Join: %v", err)
		}

		s.l.Infof(ctx, "Viewer %d joined session %s as participant %d", p.ViewerID, ss.Code, p.ID)
	}

	order, _ := s.store.Rank(in.SessionCode, in.ViewerID)
	return &JoinOutput{
		Participant: p,
		Order:       order,
		Created:     created,
	}, nil
}

func (s *lineupService) Leave(ctx context.Context, sessionCode string, viewerID int64) error {
	return s.leave(ctx, sessionCode, viewerID, kafka.LeftReasonLeft)
}

// leave is shared by an explicit leave, heartbeat expiry and a dropped
// connection without a heartbeat.
func (s *lineupService) leave(ctx context.Context, sessionCode string, viewerID int64, reason string) error {
	var (
		ss *models.Session
		p  *models.Participant
	)
	err := s.locked(sessionCode, func() error {
		var err error
		ss, err = s.openSessionByCode(ctx, sessionCode)
		if err != nil {
			return err
		}
		p, err = s.participant(ctx, sessionCode, viewerID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, p, models.ParticipantStatusLeft); err != nil {
			return err
		}

		s.store.Remove(sessionCode, viewerID)
		s.tracker.Forget(viewerID, sessionCode)
		return nil
	})
	if err != nil {
		return err
	}

	s.viewers.Unsubscribe(connection.ViewerKey{SessionCode: sessionCode, MemberID: viewerID})
	s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventOrderUpdated)

	notice := s.notice(ctx, ss, p)
	s.engine.SendToStreamer(ctx, ss.StreamerID, models.NewEvent(models.EventParticipantLeft,
		fmt.Sprintf("%s left the lineup", notice.DisplayName), notice))

	s.publishLeft(ctx, ss, p, reason)

	s.l.Infof(ctx, "Viewer %d left session %s (%s)", viewerID, sessionCode, reason)

	return nil
}

func (s *lineupService) Kick(ctx context.Context, streamerID, viewerID int64) error {
	ss, err := s.openSessionByStreamer(ctx, streamerID)
	if err != nil {
		return err
	}

	var p *models.Participant
	err = s.locked(ss.Code, func() error {
		if _, err := s.openSessionByCode(ctx, ss.Code); err != nil {
			return err
		}
		var err error
		p, err = s.participant(ctx, ss.Code, viewerID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, p, models.ParticipantStatusRejected); err != nil {
			return err
		}

		s.store.Remove(ss.Code, viewerID)
		s.tracker.Forget(viewerID, ss.Code)
		return nil
	})
	if err != nil {
		return err
	}

	s.engine.SendToOne(ctx, ss.Code, viewerID, models.NewEvent(models.EventParticipantKicked,
		"you were removed from the lineup", nil))
	s.viewers.Unsubscribe(connection.ViewerKey{SessionCode: ss.Code, MemberID: viewerID})
	s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventOrderUpdated)

	s.publishLeft(ctx, ss, p, kafka.LeftReasonKicked)

	s.l.Infof(ctx, "Viewer %d kicked from session %s", viewerID, ss.Code)

	return nil
}

func (s *lineupService) TogglePick(ctx context.Context, streamerID, viewerID int64) (*models.Participant, error) {
	ss, p, err := s.updateActive(ctx, streamerID, viewerID, func(p *models.Participant) error {
		p.Fixed = !p.Fixed
		p.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventOrderUpdated)

	notice := s.notice(ctx, ss, p)
	msg := fmt.Sprintf("%s was picked", notice.DisplayName)
	if !p.Fixed {
		msg = fmt.Sprintf("%s was unpicked", notice.DisplayName)
	}
	s.engine.SendToStreamer(ctx, ss.StreamerID, models.NewEvent(models.EventParticipantFixed, msg, notice))

	return p, nil
}

func (s *lineupService) Approve(ctx context.Context, streamerID, viewerID int64) (*models.Participant, error) {
	ss, p, err := s.updateActive(ctx, streamerID, viewerID, func(p *models.Participant) error {
		if !p.Status.CanTransitionTo(models.ParticipantStatusApproved) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, models.ParticipantStatusApproved)
		}
		p.Status = models.ParticipantStatusApproved
		p.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventOrderUpdated)
	s.engine.SendToStreamer(ctx, ss.StreamerID, models.NewEvent(models.EventParticipantStatus,
		"participant approved", s.notice(ctx, ss, p)))

	return p, nil
}

// updateActive applies mutate to an active participant of the streamer's open
// session, then persists it and replaces its lineup entry.
func (s *lineupService) updateActive(
	ctx context.Context,
	streamerID, viewerID int64,
	mutate func(p *models.Participant) error,
) (*models.Session, *models.Participant, error) {
	ss, err := s.openSessionByStreamer(ctx, streamerID)
	if err != nil {
		return nil, nil, err
	}

	var p *models.Participant
	err = s.locked(ss.Code, func() error {
		if _, err := s.openSessionByCode(ctx, ss.Code); err != nil {
			return err
		}
		var err error
		p, err = s.participant(ctx, ss.Code, viewerID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return ErrParticipantNotFound
		}
		if err := mutate(p); err != nil {
			return err
		}
		if err := s.pRepo.Save(ctx, p); err != nil {
			s.l.Errorf(ctx, "service.lineupService.updateActive.Save: %v", err)
			return fmt.Errorf("failed to save participant: %w", err)
		}

		s.store.Update(ss.Code, p.OrderEntry())
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return ss, p, nil
}

func (s *lineupService) AdvanceRound(ctx context.Context, streamerID int64) (*AdvanceRoundOutput, error) {
	ss, err := s.openSessionByStreamer(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	var advanced []models.ParticipantOrder
	err = s.locked(ss.Code, func() error {
		if _, err := s.openSessionByCode(ctx, ss.Code); err != nil {
			return err
		}

		// Persist first so a failed save leaves the queue untouched and a
		// retry advances the same group once.
		group := s.store.SortedSnapshot(ss.Code)
		group = group[:min(ss.MaxGroupSize, len(group))]

		now := s.clock.Now()
		updated := make([]*models.Participant, 0, len(group))
		for _, o := range group {
			p, err := s.participant(ctx, ss.Code, o.ViewerID)
			if err != nil {
				s.l.Warnf(ctx, "service.lineupService.AdvanceRound: viewer %d: %v", o.ViewerID, err)
				continue
			}
			p.Round = o.Round + 1
			p.UpdatedAt = now
			updated = append(updated, p)
		}
		if err := s.pRepo.SaveMany(ctx, updated); err != nil {
			s.l.Errorf(ctx, "service.lineupService.AdvanceRound.SaveMany: %v", err)
			return fmt.Errorf("failed to save rounds: %w", err)
		}

		advanced = s.store.AdvanceRound(ss.Code, ss.MaxGroupSize)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.BroadcastOrderedSnapshot(ctx, ss, models.EventRoundAdvanced)
	s.engine.SendToStreamer(ctx, ss.StreamerID, models.NewEvent(models.EventRoundAdvanced,
		fmt.Sprintf("%d participants advanced", len(advanced)), s.snapshot(ss)))

	return &AdvanceRoundOutput{
		SessionCode: ss.Code,
		Advanced:    advanced,
	}, nil
}

func (s *lineupService) publishLeft(ctx context.Context, ss *models.Session, p *models.Participant, reason string) {
	if err := s.prod.PublishParticipantLeft(ctx, kafka.ParticipantLeftEvent{
		SessionCode:   ss.Code,
		StreamerID:    ss.StreamerID,
		ViewerID:      p.ViewerID,
		ParticipantID: p.ID,
		Reason:        reason,
		LeftAt:        p.UpdatedAt,
	}); err != nil {
		s.l.Errorf(ctx, "service.lineupService.publishLeft: %v", err)
	}
}
