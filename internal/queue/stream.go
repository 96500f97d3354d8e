package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"time"

	"github.com/playchess/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventType tags a queue index row mutation.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventModify EventType = "MODIFY"
	EventRemove EventType = "REMOVE"
)

// Event is one queue index mutation with its post-image. Events for the
// same bucket always land on the same shard, in mutation order.
type Event struct {
	Type  EventType         `json:"type"`
	Entry models.QueueEntry `json:"entry"`
}

// EventPublisher is the write side of the change feed.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventHandler processes one stream event. Returning a TransientError
// leaves the event pending for redelivery; any other outcome acknowledges it.
type EventHandler func(ctx context.Context, ev Event) error

const (
	streamKeyPrefix = "queue:events:"
	consumerGroup   = "matchers"

	readBlock    = 5 * time.Second
	readBatch    = 16
	claimMinIdle = time.Minute
	claimEvery   = 30 * time.Second
)

// Stream is the queue index change feed on Redis Streams: one stream key
// per shard, consumed through a consumer group for at-least-once delivery.
type Stream struct {
	rdb      *redis.Client
	shards   int
	consumer string
}

// NewStream creates a change feed with the given shard count. consumer
// names this process inside the consumer group (hostname or similar).
func NewStream(rdb *redis.Client, shards int, consumer string) *Stream {
	if shards < 1 {
		shards = 1
	}
	return &Stream{rdb: rdb, shards: shards, consumer: consumer}
}

// Shards returns the shard count.
func (s *Stream) Shards() int { return s.shards }

// Shard maps a bucket key to its shard, keeping per-bucket ordering.
func (s *Stream) Shard(bucketKey string) int {
	h := fnv.New32a()
	h.Write([]byte(bucketKey))
	return int(h.Sum32() % uint32(s.shards))
}

func (s *Stream) key(shard int) string {
	return fmt.Sprintf("%s%d", streamKeyPrefix, shard)
}

// Publish appends the event to its bucket's shard.
func (s *Stream) Publish(ctx context.Context, ev Event) error {
	entry, err := json.Marshal(ev.Entry)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(s.Shard(ev.Entry.BucketKey)),
		Values: map[string]interface{}{
			"type":  string(ev.Type),
			"entry": entry,
		},
	}).Err()
}

// Consume reads one shard in FIFO order and feeds events to h, one at a
// time. Events whose handler fails stay pending and are redelivered; stale
// pending entries from dead consumers are reclaimed periodically. Blocks
// until ctx is cancelled.
func (s *Stream) Consume(ctx context.Context, shard int, h EventHandler) error {
	key := s.key(shard)
	consumer := fmt.Sprintf("%s-%d", s.consumer, shard)

	if err := s.rdb.XGroupCreateMkStream(ctx, key, consumerGroup, "0").Err(); err != nil &&
		!strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group on %s: %w", key, err)
	}

	log.Printf("[STREAM] consumer %s reading %s", consumer, key)

	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(lastClaim) > claimEvery {
			lastClaim = time.Now()
			claimed, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   key,
				Group:    consumerGroup,
				Consumer: consumer,
				MinIdle:  claimMinIdle,
				Start:    "0-0",
				Count:    readBatch,
			}).Result()
			if err != nil && err != redis.Nil {
				log.Printf("[STREAM] autoclaim on %s failed: %v", key, err)
			} else {
				s.dispatch(ctx, key, claimed, h)
			}
		}

		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if err == redis.Nil {
			continue // nothing new within the block window
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[STREAM] read on %s failed: %v", key, err)
			time.Sleep(time.Second)
			continue
		}

		for _, st := range streams {
			s.dispatch(ctx, key, st.Messages, h)
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, key string, msgs []redis.XMessage, h EventHandler) {
	for _, msg := range msgs {
		ev, err := decodeEvent(msg)
		if err != nil {
			// Poison payload: acknowledge so it cannot wedge the shard.
			log.Printf("[STREAM] dropping undecodable event %s on %s: %v", msg.ID, key, err)
			s.rdb.XAck(ctx, key, consumerGroup, msg.ID)
			continue
		}
		if err := h(ctx, ev); err != nil {
			log.Printf("[STREAM] handler failed for event %s on %s, leaving pending: %v", msg.ID, key, err)
			continue
		}
		s.rdb.XAck(ctx, key, consumerGroup, msg.ID)
	}
}

func decodeEvent(msg redis.XMessage) (Event, error) {
	var ev Event
	typ, ok := msg.Values["type"].(string)
	if !ok {
		return ev, fmt.Errorf("missing type field")
	}
	raw, ok := msg.Values["entry"].(string)
	if !ok {
		return ev, fmt.Errorf("missing entry field")
	}
	if err := json.Unmarshal([]byte(raw), &ev.Entry); err != nil {
		return ev, fmt.Errorf("bad entry payload: %w", err)
	}
	ev.Type = EventType(typ)
	return ev, nil
}
