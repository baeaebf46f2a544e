package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"aercd/pkg/domain"
)

// maxStoredMessages bounds every transcript; older messages are dropped.
const maxStoredMessages = 200

// TranscriptStore keeps conversation transcripts. Owner is the user id that
// started the conversation, "" for anonymous visitors.
type TranscriptStore interface {
	Owner(ctx context.Context, id string) (owner string, ok bool, err error)
	Append(ctx context.Context, id, owner string, msgs ...domain.ChatMessage) error
	Recent(ctx context.Context, id string, limit int) ([]domain.ChatMessage, error)
}

type conversation struct {
	owner    string
	messages []domain.ChatMessage
	updated  time.Time
}

// MemoryTranscripts keeps transcripts in-process. When more than
// maxConversations exist the least recently updated one is evicted.
type MemoryTranscripts struct {
	mu               sync.Mutex
	conversations    map[string]*conversation
	maxConversations int
}

// NewMemoryTranscripts builds an in-process store holding at most limit
// conversations; limit <= 0 means 1000.
func NewMemoryTranscripts(limit int) *MemoryTranscripts {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryTranscripts{conversations: make(map[string]*conversation), maxConversations: limit}
}

func (m *MemoryTranscripts) Owner(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return "", false, nil
	}
	return c.owner, true, nil
}

func (m *MemoryTranscripts) Append(_ context.Context, id, owner string, msgs ...domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		if len(m.conversations) >= m.maxConversations {
			m.evictOldest()
		}
		c = &conversation{owner: owner}
		m.conversations[id] = c
	}
	c.messages = append(c.messages, msgs...)
	if extra := len(c.messages) - maxStoredMessages; extra > 0 {
		c.messages = append([]domain.ChatMessage(nil), c.messages[extra:]...)
	}
	c.updated = time.Now()
	return nil
}

func (m *MemoryTranscripts) Recent(_ context.Context, id string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || limit <= 0 {
		return nil, nil
	}
	msgs := c.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.ChatMessage(nil), msgs...), nil
}

func (m *MemoryTranscripts) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, c := range m.conversations {
		if oldestID == "" || c.updated.Before(oldest) {
			oldestID, oldest = id, c.updated
		}
	}
	delete(m.conversations, oldestID)
}

// RedisTranscripts keeps transcripts in Redis lists so every replica sees
// the same conversations. Keys expire ttl after the last message.
type RedisTranscripts struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTranscripts connects to Redis; ttl <= 0 means 24h.
func NewRedisTranscripts(addr, password string, ttl time.Duration) *RedisTranscripts {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTranscripts{
		client: redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password}),
		ttl:    ttl,
	}
}

func (r *RedisTranscripts) Owner(ctx context.Context, id string) (string, bool, error) {
	owner, err := r.client.Get(ctx, ownerKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load conversation owner: %w", err)
	}
	return owner, true, nil
}

func (r *RedisTranscripts) Append(ctx context.Context, id, owner string, msgs ...domain.ChatMessage) error {
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		values = append(values, raw)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, ownerKey(id), owner, r.ttl)
		pipe.Expire(ctx, ownerKey(id), r.ttl)
		if len(values) > 0 {
			pipe.RPush(ctx, messagesKey(id), values...)
			pipe.LTrim(ctx, messagesKey(id), -maxStoredMessages, -1)
			pipe.Expire(ctx, messagesKey(id), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (r *RedisTranscripts) Recent(ctx context.Context, id string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, messagesKey(id), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func ownerKey(id string) string    { return "aercd:chat:" + id + ":owner" }
func messagesKey(id string) string { return "aercd:chat:" + id + ":messages" }
