package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"price-compare/pkg/models"
)

const sessionKeyPrefix = "progress:"

// RedisLedger stores each session as a hash of platform key to JSON entry,
// so pollers on other instances see the same progress.
type RedisLedger struct {
	client *redis.Client
	maxAge time.Duration
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, maxAge: DefaultMaxAge}
}

func (l *RedisLedger) key(sessionID string) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, sessionID)
}

func (l *RedisLedger) Put(ctx context.Context, sessionID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := l.key(sessionID)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, e.Platform, data)
		pipe.Expire(ctx, key, l.maxAge)
		return nil
	})
	return err
}

func (l *RedisLedger) Get(ctx context.Context, sessionID string) (Session, error) {
	fields, err := l.client.HGetAll(ctx, l.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, models.ErrSessionNotFound
	}

	out := make(Session, len(fields))
	for platform, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			zap.L().Warn("unreadable progress entry",
				zap.String("session", sessionID), zap.String("platform", platform), zap.Error(err))
			continue
		}
		out[platform] = e
	}
	return out, nil
}

func (l *RedisLedger) Release(ctx context.Context, sessionID string, grace time.Duration) error {
	ok, err := l.client.Expire(ctx, l.key(sessionID), grace).Result()
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrSessionNotFound
	}
	return nil
}
