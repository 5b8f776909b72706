package schedule

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// dueKey indexes every pending action by due time for the executor.
const dueKey = "schedule:due"

// RedisScheduler stores actions in Redis sorted sets scored by due time.
type RedisScheduler struct {
	client *redis.Client
}

// NewRedisScheduler connects to Redis.
func NewRedisScheduler(ctx context.Context, redisURL string) (*RedisScheduler, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisScheduler{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisScheduler) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisScheduler) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// conversationKey returns the key for a conversation's action set.
func conversationKey(tenantID, conversationID string) string {
	return fmt.Sprintf("schedule:%s:%s", tenantID, conversationID)
}

// Schedule adds the action to the conversation set and the global due index.
func (s *RedisScheduler) Schedule(ctx context.Context, action *model.ScheduledAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return err
	}

	z := redis.Z{
		Score:  float64(action.DueAt.UnixMilli()),
		Member: string(data),
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, conversationKey(action.TenantID, action.ConversationID), z)
		pipe.ZAdd(ctx, dueKey, z)
		return nil
	})
	return err
}

// List returns a conversation's actions ordered by due time.
func (s *RedisScheduler) List(ctx context.Context, tenantID, conversationID string) ([]model.ScheduledAction, error) {
	results, err := s.client.ZRange(ctx, conversationKey(tenantID, conversationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	actions := make([]model.ScheduledAction, 0, len(results))
	for _, data := range results {
		var a model.ScheduledAction
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			continue // skip malformed entries
		}
		actions = append(actions, a)
	}
	return actions, nil
}
