package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"stututor-go/internal/model"
)

const (
	conversationIndexKey = "conversations:index"
	maxAppendRetries     = 16
)

type redisConversationStore struct {
	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

// NewRedisConversationStore 创建基于 Redis 的对话存储。
// 元数据存为 JSON 字符串，消息存为列表，索引为按 UpdatedAt 排序的有序集合。
func NewRedisConversationStore(redisClient *redis.Client, ttl time.Duration) ConversationStore {
	return &redisConversationStore{redisClient: redisClient, ttl: ttl, now: time.Now}
}

func metaKey(id string) string     { return fmt.Sprintf("conversation:%s:meta", id) }
func messagesKey(id string) string { return fmt.Sprintf("conversation:%s:messages", id) }

func (r *redisConversationStore) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	conv := newConversation(title, r.now())
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, metaKey(conv.ID), data, r.ttl)
		pipe.ZAdd(ctx, conversationIndexKey, &redis.Z{Score: score(conv.UpdatedAt), Member: conv.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (r *redisConversationStore) AppendMessage(ctx context.Context, conversationID string, messages ...model.Message) (*model.Conversation, error) {
	if err := validateAppend(messages); err != nil {
		return nil, err
	}

	var result *model.Conversation
	txf := func(tx *redis.Tx) error {
		conv, err := r.loadMeta(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		existing, err := tx.LLen(ctx, messagesKey(conversationID)).Result()
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		added := applyAppend(conv, int(existing), messages, r.now())
		values := make([]interface{}, 0, len(added))
		for _, m := range added {
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			values = append(values, b)
		}
		meta, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, messagesKey(conversationID), values...)
			pipe.Set(ctx, metaKey(conversationID), meta, r.ttl)
			if r.ttl > 0 {
				pipe.Expire(ctx, messagesKey(conversationID), r.ttl)
			}
			pipe.ZAdd(ctx, conversationIndexKey, &redis.Z{Score: score(conv.UpdatedAt), Member: conversationID})
			return nil
		})
		if err != nil {
			return err
		}
		result = conv
		return nil
	}

	// 元数据被并发修改时重试
	for i := 0; i < maxAppendRetries; i++ {
		err := r.redisClient.Watch(ctx, txf, metaKey(conversationID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("failed to append messages to %s: too much contention", conversationID)
}

func (r *redisConversationStore) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if _, err := r.loadMeta(ctx, r.redisClient, conversationID); err != nil {
		return nil, err
	}
	return r.loadMessages(ctx, conversationID, limit)
}

func (r *redisConversationStore) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := r.loadMeta(ctx, r.redisClient, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages, err = r.loadMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *redisConversationStore) List(ctx context.Context) ([]model.Conversation, error) {
	ids, err := r.redisClient.ZRevRange(ctx, conversationIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(ids) == 0 {
		return []model.Conversation{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = metaKey(id)
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	out := make([]model.Conversation, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// 元数据已过期，顺手清理索引
			expired = append(expired, ids[i])
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal([]byte(s), &conv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", ids[i], err)
		}
		out = append(out, conv)
	}
	if len(expired) > 0 {
		_ = r.redisClient.ZRem(ctx, conversationIndexKey, expired...).Err()
	}
	return out, nil
}

func (r *redisConversationStore) loadMeta(ctx context.Context, c stringGetter, id string) (*model.Conversation, error) {
	data, err := c.Get(ctx, metaKey(id)).Result()
	if err == redis.Nil {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

func (r *redisConversationStore) loadMessages(ctx context.Context, id string, limit int) ([]model.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := r.redisClient.LRange(ctx, messagesKey(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.Message, 0, len(raw))
	for _, s := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// stringGetter 同时由 *redis.Client 和 *redis.Tx 实现。
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
