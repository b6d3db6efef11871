package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	errx "github.com/tokyo-trip-assistant/server/internal/core/error"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// RedisConversationRepository stores each session as a Redis list of JSON
// turns. Appends refresh the idle TTL and trim the list to maxStoredTurns so
// a long-running session cannot grow without bound.
type RedisConversationRepository struct {
	rdb            redis.Cmdable
	ttl            time.Duration
	maxStoredTurns int
}

func NewRedisConversationRepository(rdb redis.Cmdable, ttl time.Duration, maxStoredTurns int) *RedisConversationRepository {
	return &RedisConversationRepository{rdb: rdb, ttl: ttl, maxStoredTurns: maxStoredTurns}
}

func (r *RedisConversationRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

func (r *RedisConversationRepository) AppendTurns(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		b, err := json.Marshal(turn)
		if err != nil {
			logx.Error().Err(err).Str("sessionID", sessionID).Msg("failed to marshal turn")
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, b)
	}
	key := r.sessionKey(sessionID)

	// single RPUSH so the turns of one exchange land together or not at all
	if err := r.rdb.RPush(ctx, key, values...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turns to redis")
		return errx.WrapRedis(err)
	}
	// keep only the most recent turns
	if r.maxStoredTurns > 0 {
		if err := r.rdb.LTrim(ctx, key, int64(-r.maxStoredTurns), -1).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to trim session history")
			return errx.WrapRedis(err)
		}
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on session key")
		}
	}
	return nil
}

func (r *RedisConversationRepository) History(ctx context.Context, sessionID string, maxTurns int) (*model.ConversationHistory, error) {
	key := r.sessionKey(sessionID)

	start := int64(0)
	if maxTurns > 0 {
		start = int64(-maxTurns)
	}
	rows, err := r.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.ConversationHistory{SessionID: sessionID, Turns: []model.Turn{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session history from redis")
		return nil, errx.WrapRedis(err)
	}

	turns := make([]model.Turn, 0, len(rows))
	for i, s := range rows {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Str("sessionID", sessionID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		turns = append(turns, t)
	}
	return &model.ConversationHistory{SessionID: sessionID, Turns: turns}, nil
}

func (r *RedisConversationRepository) Evict(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) TurnCount(ctx context.Context, sessionID string) (int, error) {
	key := r.sessionKey(sessionID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get turn count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ConversationRepository = (*RedisConversationRepository)(nil)
