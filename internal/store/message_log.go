package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"hanna-engine/internal/models"
)

// MessageLog bounded per-patient conversation history, newest first.
type MessageLog interface {
	Append(ctx context.Context, patientID string, msg models.LoggedMessage) error
	Recent(ctx context.Context, patientID string, n int) ([]models.LoggedMessage, error)
}

// RedisMessageLog keeps the last `size` messages per patient in a Redis list.
type RedisMessageLog struct {
	c    *redis.Client
	size int
	ttl  time.Duration
}

func NewRedisMessageLog(c *redis.Client, size int, ttl time.Duration) *RedisMessageLog {
	if size <= 0 {
		size = 20
	}
	return &RedisMessageLog{c: c, size: size, ttl: ttl}
}

var _ MessageLog = (*RedisMessageLog)(nil)

func messageLogKey(patientID string) string {
	return "hanna:messages:" + patientID
}

// Append pushes msg and trims the list to size in one pipeline.
func (l *RedisMessageLog) Append(ctx context.Context, patientID string, msg models.LoggedMessage) error {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	key := messageLogKey(patientID)
	pipe := l.c.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(l.size-1))
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent up to n newest messages; n<=0 returns the whole log.
func (l *RedisMessageLog) Recent(ctx context.Context, patientID string, n int) ([]models.LoggedMessage, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	vals, err := l.c.LRange(ctx, messageLogKey(patientID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	out := make([]models.LoggedMessage, 0, len(vals))
	for _, v := range vals {
		var m models.LoggedMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// MemoryMessageLog in-process MessageLog for single-node runs and tests.
type MemoryMessageLog struct {
	mu   sync.Mutex
	size int
	logs map[string][]models.LoggedMessage
}

func NewMemoryMessageLog(size int) *MemoryMessageLog {
	if size <= 0 {
		size = 20
	}
	return &MemoryMessageLog{size: size, logs: make(map[string][]models.LoggedMessage)}
}

var _ MessageLog = (*MemoryMessageLog)(nil)

func (l *MemoryMessageLog) Append(_ context.Context, patientID string, msg models.LoggedMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := append([]models.LoggedMessage{msg}, l.logs[patientID]...)
	if len(entries) > l.size {
		entries = entries[:l.size]
	}
	l.logs[patientID] = entries
	return nil
}

func (l *MemoryMessageLog) Recent(_ context.Context, patientID string, n int) ([]models.LoggedMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.logs[patientID]
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	out := make([]models.LoggedMessage, len(entries))
	copy(out, entries)
	return out, nil
}
