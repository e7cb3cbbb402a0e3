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

const closedSessionTTL = 24 * time.Hour

type SessionRepository interface {
	// Create stores a new open session and claims the streamer's open-session slot.
	Create(ctx context.Context, ss *models.Session) error
	Get(ctx context.Context, code string) (*models.Session, error)
	FindOpenByCode(ctx context.Context, code string) (*models.Session, error)
	FindOpenByStreamer(ctx context.Context, streamerID int64) (*models.Session, error)
	// Save persists ss. A closed session releases the streamer slot and expires later.
	Save(ctx context.Context, ss *models.Session) error
	ListOpen(ctx context.Context) ([]*models.Session, error)
}

// releaseIfOwner deletes KEYS[1] only while it still points at ARGV[1].
var releaseIfOwner = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type redisSessionRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisSessionRepository(cli *redis.Client, l logger.Logger) SessionRepository {
	return &redisSessionRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisSessionRepository) Create(ctx context.Context, ss *models.Session) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	claimed, err := r.cli.SetNX(ctx, r.streamerKey(ss.StreamerID), ss.Code, 0).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Create.SetNX: %v", err)
		return err
	}
	if !claimed {
		return ErrOpenSessionExists
	}

	created, err := r.cli.SetNX(ctx, r.sessionKey(ss.Code), data, 0).Result()
	if err != nil || !created {
		if rerr := releaseIfOwner.Run(ctx, r.cli, []string{r.streamerKey(ss.StreamerID)}, ss.Code).Err(); rerr != nil {
			r.l.Warnf(ctx, "redisSessionRepository.Create.release: %v", rerr)
		}
		if err != nil {
			r.l.Errorf(ctx, "redisSessionRepository.Create: %v", err)
			return err
		}
		return ErrCodeTaken
	}

	if err := r.cli.SAdd(ctx, r.openSetKey(), ss.Code).Err(); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Create.SAdd: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Session created code=%s streamer=%d", ss.Code, ss.StreamerID)

	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, code string) (*models.Session, error) {
	data, err := r.cli.Get(ctx, r.sessionKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	var ss models.Session
	if err := json.Unmarshal(data, &ss); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	return &ss, nil
}

func (r *redisSessionRepository) FindOpenByCode(ctx context.Context, code string) (*models.Session, error) {
	ss, err := r.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ss.IsOpen() {
		return nil, ErrNotFound
	}
	return ss, nil
}

func (r *redisSessionRepository) FindOpenByStreamer(ctx context.Context, streamerID int64) (*models.Session, error) {
	code, err := r.cli.Get(ctx, r.streamerKey(streamerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.FindOpenByStreamer: %v", err)
		return nil, err
	}

	return r.FindOpenByCode(ctx, code)
}

func (r *redisSessionRepository) Save(ctx context.Context, ss *models.Session) error {
	data, err := json.Marshal(ss)
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Save: %v", err)
		return err
	}

	if ss.IsOpen() {
		if err := r.cli.Set(ctx, r.sessionKey(ss.Code), data, 0).Err(); err != nil {
			r.l.Errorf(ctx, "redisSessionRepository.Save: %v", err)
			return err
		}
		return nil
	}

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.sessionKey(ss.Code), data, closedSessionTTL)
	pipe.SRem(ctx, r.openSetKey(), ss.Code)
	releaseIfOwner.Eval(ctx, pipe, []string{r.streamerKey(ss.StreamerID)}, ss.Code)
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Save.Exec: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Session closed code=%s", ss.Code)

	return nil
}

func (r *redisSessionRepository) ListOpen(ctx context.Context) ([]*models.Session, error) {
	codes, err := r.cli.SMembers(ctx, r.openSetKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ListOpen: %v", err)
		return nil, err
	}

	out := make([]*models.Session, 0, len(codes))
	for _, code := range codes {
		ss, err := r.FindOpenByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ss)
	}

	return out, nil
}

func (r *redisSessionRepository) sessionKey(code string) string {
	return fmt.Sprintf("lineup:session:%s", code)
}

func (r *redisSessionRepository) streamerKey(streamerID int64) string {
	return "lineup:streamer_session:" + strconv.FormatInt(streamerID, 10)
}

func (r *redisSessionRepository) openSetKey() string {
	return "lineup:sessions:open"
}
