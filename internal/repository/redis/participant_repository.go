package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type ParticipantRepository interface {
	// NextID returns a new participant id. Ids grow with arrival time.
	NextID(ctx context.Context) (int64, error)
	Save(ctx context.Context, p *models.Participant) error
	SaveMany(ctx context.Context, ps []*models.Participant) error
	Get(ctx context.Context, code string, viewerID int64) (*models.Participant, error)
	// List returns the session's participants in arrival order.
	List(ctx context.Context, code string) ([]*models.Participant, error)
	MarkAllLeft(ctx context.Context, code string, at time.Time) (int, error)
}

type redisParticipantRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisParticipantRepository(cli *redis.Client, l logger.Logger) ParticipantRepository {
	return &redisParticipantRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisParticipantRepository) NextID(ctx context.Context) (int64, error) {
	id, err := r.cli.Incr(ctx, r.sequenceKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisParticipantRepository.NextID: %v", err)
		return 0, err
	}
	return id, nil
}

func (r *redisParticipantRepository) Save(ctx context.Context, p *models.Participant) error {
	return r.SaveMany(ctx, []*models.Participant{p})
}

func (r *redisParticipantRepository) SaveMany(ctx context.Context, ps []*models.Participant) error {
	if len(ps) == 0 {
		return nil
	}

	pipe := r.cli.TxPipeline()
	for _, p := range ps {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal participant: %w", err)
		}
		member := strconv.FormatInt(p.ViewerID, 10)
		pipe.HSet(ctx, r.participantsKey(p.SessionCode), member, data)
		pipe.ZAdd(ctx, r.arrivalKey(p.SessionCode), redis.Z{
			Score:  float64(p.ID),
			Member: member,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisParticipantRepository.SaveMany: %v", err)
		return err
	}

	return nil
}

func (r *redisParticipantRepository) Get(ctx context.Context, code string, viewerID int64) (*models.Participant, error) {
	data, err := r.cli.HGet(ctx, r.participantsKey(code), strconv.FormatInt(viewerID, 10)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		r.l.Errorf(ctx, "redisParticipantRepository.Get: %v", err)
		return nil, err
	}

	var p models.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		r.l.Errorf(ctx, "redisParticipantRepository.Get: %v", err)
		return nil, err
	}

	return &p, nil
}

func (r *redisParticipantRepository) List(ctx context.Context, code string) ([]*models.Participant, error) {
	members, err := r.cli.ZRange(ctx, r.arrivalKey(code), 0, -1).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisParticipantRepository.List.ZRange: %v", err)
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	values, err := r.cli.HMGet(ctx, r.participantsKey(code), members...).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisParticipantRepository.List.HMGet: %v", err)
		return nil, err
	}

	out := make([]*models.Participant, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p models.Participant
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			r.l.Errorf(ctx, "redisParticipantRepository.List: %v", err)
			return nil, err
		}
		out = append(out, &p)
	}

	return out, nil
}

func (r *redisParticipantRepository) MarkAllLeft(ctx context.Context, code string, at time.Time) (int, error) {
	ps, err := r.List(ctx, code)
	if err != nil {
		return 0, err
	}

	changed := make([]*models.Participant, 0, len(ps))
	for _, p := range ps {
		if !p.Status.CanTransitionTo(models.ParticipantStatusLeft) {
			continue
		}
		p.Status = models.ParticipantStatusLeft
		p.UpdatedAt = at
		changed = append(changed, p)
	}

	if err := r.SaveMany(ctx, changed); err != nil {
		return 0, err
	}

	return len(changed), nil
}

func (r *redisParticipantRepository) participantsKey(code string) string {
	return fmt.Sprintf("lineup:session:%s:participants", code)
}

func (r *redisParticipantRepository) arrivalKey(code string) string {
	return fmt.Sprintf("lineup:session:%s:arrivals", code)
}

func (r *redisParticipantRepository) sequenceKey() string {
	return "lineup:participant:seq"
}
