// internal/telemetry/redis.go

// Package telemetry publishes resolved-round records onto a Redis queue for
// offline consumers (dashboards, balance analysis). Rooms stay authoritative
// and purely in-memory; a lost record never affects gameplay.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talespin-gg/talespin/internal/room"
)

// DefaultQueueName is the Redis list round records are pushed onto.
const DefaultQueueName = "talespin_rounds"

// roundEntry is the wire form of one queue entry.
type roundEntry struct {
	ID        uuid.UUID        `json:"id"`
	Timestamp int64            `json:"timestamp"`
	Round     room.RoundRecord `json:"round"`
}

// Recorder pushes round records to Redis, fire-and-forget.
type Recorder struct {
	rdb   *redis.Client
	queue string
}

// NewRecorder connects to Redis and verifies the connection with a ping.
func NewRecorder(addr string, db int, queue string) (*Recorder, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &Recorder{rdb: rdb, queue: queue}, nil
}

// RecordRound serializes the record and RPushes it onto the queue.
func (rec *Recorder) RecordRound(ctx context.Context, rr room.RoundRecord) error {
	data, err := json.Marshal(roundEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().Unix(),
		Round:     rr,
	})
	if err != nil {
		return fmt.Errorf("marshaling round record: %w", err)
	}
	if err := rec.rdb.RPush(ctx, rec.queue, data).Err(); err != nil {
		return fmt.Errorf("pushing round record to %q: %w", rec.queue, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (rec *Recorder) Close() error {
	return rec.rdb.Close()
}
