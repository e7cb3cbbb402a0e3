package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type MemberRepository interface {
	GetDisplayName(ctx context.Context, memberID int64) (string, error)
	SetDisplayName(ctx context.Context, memberID int64, name string) error
}

type redisMemberRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisMemberRepository(cli *redis.Client, l logger.Logger) MemberRepository {
	return &redisMemberRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisMemberRepository) GetDisplayName(ctx context.Context, memberID int64) (string, error) {
	name, err := r.cli.HGet(ctx, r.namesKey(), strconv.FormatInt(memberID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		r.l.Errorf(ctx, "redisMemberRepository.GetDisplayName: %v", err)
		return "", err
	}
	return name, nil
}

func (r *redisMemberRepository) SetDisplayName(ctx context.Context, memberID int64, name string) error {
	if err := r.cli.HSet(ctx, r.namesKey(), strconv.FormatInt(memberID, 10), name).Err(); err != nil {
		r.l.Errorf(ctx, "redisMemberRepository.SetDisplayName: %v", err)
		return err
	}
	return nil
}

func (r *redisMemberRepository) namesKey() string {
	return "lineup:member:display_names"
}
