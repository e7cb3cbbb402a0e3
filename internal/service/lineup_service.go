package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/broadcast"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/clock"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/uuid"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/heartbeat"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/queue"
	repository "github.com/vogiaan1904/ticketbottle-lineup/internal/repository/redis"
	pkgLog "github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type Dependencies struct {
	Sessions     repository.SessionRepository
	Participants repository.ParticipantRepository
	Members      repository.MemberRepository
	Store        queue.Store
	Engine       broadcast.Engine
	Viewers      connection.Registry[connection.ViewerKey]
	Streamers    connection.Registry[int64]
	Tracker      heartbeat.Tracker
	Producer     producer.Producer
	Clock        clock.Clock
	UUID         uuid.UUID
	Logger       pkgLog.Logger
}

type lineupService struct {
	cfg Config

	ssRepo  repository.SessionRepository
	pRepo   repository.ParticipantRepository
	mRepo   repository.MemberRepository
	store   queue.Store
	engine  broadcast.Engine
	viewers connection.Registry[connection.ViewerKey]
	strms   connection.Registry[int64]
	tracker heartbeat.Tracker
	prod    producer.Producer
	clock   clock.Clock
	uuid    uuid.UUID
	l       pkgLog.Logger

	locks   *sessionLocks
	closing atomic.Bool
}

// NewLineupService builds the coordinator and registers it for heartbeat
// expiry and viewer connection close notifications.
func NewLineupService(cfg Config, deps Dependencies) LineupService {
	if cfg.DefaultMaxGroupSize <= 0 {
		cfg.DefaultMaxGroupSize = 4
	}
	if deps.Clock == nil {
		deps.Clock = &clock.DefaultClock{}
	}
	if deps.UUID == nil {
		deps.UUID = uuid.New()
	}
	if deps.Producer == nil {
		deps.Producer = producer.NewNoopProducer()
	}

	s := &lineupService{
		cfg:     cfg,
		ssRepo:  deps.Sessions,
		pRepo:   deps.Participants,
		mRepo:   deps.Members,
		store:   deps.Store,
		engine:  deps.Engine,
		viewers: deps.Viewers,
		strms:   deps.Streamers,
		tracker: deps.Tracker,
		prod:    deps.Producer,
		clock:   deps.Clock,
		uuid:    deps.UUID,
		l:       deps.Logger,
		locks:   newSessionLocks(),
	}

	s.tracker.SetExpiryHandler(s.HandleHeartbeatExpired)
	s.viewers.SetCloseListener(s.onViewerClosed)

	return s
}

// locked runs fn while holding the lock for sessionCode.
func (s *lineupService) locked(sessionCode string, fn func() error) error {
	sl := s.locks.acquire(sessionCode)
	defer s.locks.release(sessionCode, sl)
	return fn()
}

func (s *lineupService) openSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	ss, err := s.ssRepo.FindOpenByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		s.l.Errorf(ctx, "service.lineupService.openSessionByCode: %v", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return ss, nil
}

func (s *lineupService) openSessionByStreamer(ctx context.Context, streamerID int64) (*models.Session, error) {
	ss, err := s.ssRepo.FindOpenByStreamer(ctx, streamerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		s.l.Errorf(ctx, "service.lineupService.openSessionByStreamer: %v", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return ss, nil
}

func (s *lineupService) participant(ctx context.Context, code string, viewerID int64) (*models.Participant, error) {
	p, err := s.pRepo.Get(ctx, code, viewerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		s.l.Errorf(ctx, "service.lineupService.participant: %v", err)
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}
	return p, nil
}

// transition moves p to next through the participant transition table and
// persists it. The caller holds the session lock.
func (s *lineupService) transition(ctx context.Context, p *models.Participant, next models.ParticipantStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = s.clock.Now()

	if err := s.pRepo.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (s *lineupService) displayName(ctx context.Context, memberID int64, fallback string) string {
	name, err := s.mRepo.GetDisplayName(ctx, memberID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.l.Warnf(ctx, "service.lineupService.displayName: %v", err)
		}
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

func (s *lineupService) notice(ctx context.Context, ss *models.Session, p *models.Participant) models.StreamerNotice {
	order, _ := s.store.Rank(ss.Code, p.ViewerID)
	return models.StreamerNotice{
		ViewerID:      p.ViewerID,
		ParticipantID: p.ID,
		DisplayName:   s.displayName(ctx, p.ViewerID, p.Nickname),
		Fixed:         p.Fixed,
		Order:         order,
	}
}

func (s *lineupService) snapshot(ss *models.Session) *SnapshotOutput {
	orders := s.store.SortedSnapshot(ss.Code)
	out := &SnapshotOutput{
		SessionCode:  ss.Code,
		StreamerID:   ss.StreamerID,
		MaxGroupSize: ss.MaxGroupSize,
		Participants: make([]SnapshotEntry, 0, len(orders)),
	}
	for i, o := range orders {
		out.Participants = append(out.Participants, SnapshotEntry{
			Order:         i + 1,
			Round:         o.Round,
			Fixed:         o.Fixed,
			Status:        o.Status,
			ViewerID:      o.ViewerID,
			ParticipantID: o.ParticipantID,
			Nickname:      o.Nickname,
			IsReadyToPlay: i+1 <= ss.MaxGroupSize,
		})
	}
	return out
}

func (s *lineupService) Shutdown(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := s.viewers.CompleteAll(ctx); err != nil {
		s.l.Warnf(ctx, "service.lineupService.Shutdown.viewers: %v", err)
		errs = append(errs, fmt.Errorf("complete viewer connections: %w", err))
	}
	if err := s.strms.CompleteAll(ctx); err != nil {
		s.l.Warnf(ctx, "service.lineupService.Shutdown.streamers: %v", err)
		errs = append(errs, fmt.Errorf("complete streamer connections: %w", err))
	}

	dropped := len(s.store.Sessions())
	s.store.Clear()

	open, err := s.ssRepo.ListOpen(ctx)
	if err != nil {
		s.l.Errorf(ctx, "service.lineupService.Shutdown.ListOpen: %v", err)
		errs = append(errs, fmt.Errorf("list open sessions: %w", err))
	}

	closed := 0
	for _, ss := range open {
		err := s.locked(ss.Code, func() error {
			now := s.clock.Now()
			if _, err := s.pRepo.MarkAllLeft(ctx, ss.Code, now); err != nil {
				return fmt.Errorf("mark participants left in %s: %w", ss.Code, err)
			}
			ss.Close(now)
			if err := s.ssRepo.Save(ctx, ss); err != nil {
				return fmt.Errorf("close session %s: %w", ss.Code, err)
			}
			return nil
		})
		if err != nil {
			s.l.Errorf(ctx, "service.lineupService.Shutdown: %v", err)
			errs = append(errs, err)
			continue
		}
		closed++
	}

	s.l.Infof(ctx, "Lineup service shut down: %d queues dropped, %d sessions closed", dropped, closed)

	return errors.Join(errs...)
}
