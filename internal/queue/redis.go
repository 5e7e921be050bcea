package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
)

type StreamOptions struct {
	Stream     string
	Group      string
	Consumer   string
	DeadLetter string
	// VisibilityTimeout is how long a delivered, unacknowledged message
	// stays with its consumer before another consumer may reclaim it.
	VisibilityTimeout time.Duration
	MaxDeliveries     int
	Block             time.Duration
	BatchSize         int64
}

// Stream is a Queue on a Redis stream consumer group. Messages are acked
// only after their handler succeeds; failed ones are reclaimed once idle
// past VisibilityTimeout and dead-lettered after MaxDeliveries.
type Stream struct {
	rdb  *redis.Client
	opts StreamOptions
	log  *logger.Logger
}

func NewStream(rdb *redis.Client, opts StreamOptions, log *logger.Logger) *Stream {
	if opts.MaxDeliveries < 1 {
		opts.MaxDeliveries = DefaultMaxDeliveries
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Stream{
		rdb:  rdb,
		opts: opts,
		log:  log.With("component", "RedisStream", "stream", opts.Stream, "consumer", opts.Consumer),
	}
}

// EnsureGroup creates the stream and consumer group if needed.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.opts.Stream, s.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (s *Stream) Send(ctx context.Context, msgs ...models.QueueJob) error {
	if len(msgs) == 0 {
		return nil
	}
	payloads := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		payloads = append(payloads, payload)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, payload := range payloads {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.opts.Stream,
				Values: map[string]interface{}{
					"type":    string(msgs[i].Type),
					"payload": payload,
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %d messages: %w", len(msgs), err)
	}
	return nil
}

func (s *Stream) Consume(ctx context.Context, h Handler) error {
	if err := s.EnsureGroup(ctx); err != nil {
		return err
	}

	for ctx.Err() == nil {
		s.reclaim(ctx, h)

		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.opts.Group,
			Consumer: s.opts.Consumer,
			Streams:  []string{s.opts.Stream, ">"},
			Count:    s.opts.BatchSize,
			Block:    s.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("read group failed", "error", err)
			if sleepErr := pause(ctx, time.Second); sleepErr != nil {
				return nil
			}
			continue
		}

		for _, st := range streams {
			for _, m := range st.Messages {
				s.process(ctx, m, h)
			}
		}
	}
	return nil
}

// reclaim takes over messages whose consumer has held them longer than the
// visibility timeout, dead-lettering any that exceeded MaxDeliveries.
func (s *Stream) reclaim(ctx context.Context, h Handler) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.opts.Stream,
		Group:    s.opts.Group,
		Consumer: s.opts.Consumer,
		MinIdle:  s.opts.VisibilityTimeout,
		Start:    "0-0",
		Count:    s.opts.BatchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("autoclaim failed", "error", err)
		}
		return
	}

	for _, m := range msgs {
		deliveries, err := s.deliveryCount(ctx, m.ID)
		if err != nil {
			s.log.Warn("pending lookup failed", "message_id", m.ID, "error", err)
			continue
		}
		if deliveries > int64(s.opts.MaxDeliveries) {
			s.deadLetter(ctx, m, fmt.Sprintf("exceeded %d deliveries", s.opts.MaxDeliveries))
			continue
		}
		s.process(ctx, m, h)
	}
}

func (s *Stream) deliveryCount(ctx context.Context, id string) (int64, error) {
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.opts.Stream,
		Group:  s.opts.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount, nil
}

func (s *Stream) process(ctx context.Context, m redis.XMessage, h Handler) {
	raw, _ := m.Values["payload"].(string)
	var msg models.QueueJob
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		s.deadLetter(ctx, m, fmt.Sprintf("undecodable payload: %v", err))
		return
	}

	if err := safeHandle(ctx, h, msg); err != nil {
		// Left pending; reclaimed after the visibility timeout.
		s.log.Warn("message handler failed",
			"message_id", m.ID,
			"type", msg.Type,
			"job_id", msg.JobID(),
			"error", err,
		)
		return
	}
	if err := s.rdb.XAck(ctx, s.opts.Stream, s.opts.Group, m.ID).Err(); err != nil {
		s.log.Warn("ack failed", "message_id", m.ID, "error", err)
	}
}

func (s *Stream) deadLetter(ctx context.Context, m redis.XMessage, reason string) {
	values := map[string]interface{}{
		"source_id": m.ID,
		"reason":    reason,
	}
	for k, v := range m.Values {
		values[k] = v
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if s.opts.DeadLetter != "" {
			pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.opts.DeadLetter, Values: values})
		}
		pipe.XAck(ctx, s.opts.Stream, s.opts.Group, m.ID)
		return nil
	})
	if err != nil {
		s.log.Error("dead-letter failed", "message_id", m.ID, "error", err)
		return
	}
	typ, _ := m.Values["type"].(string)
	metrics.QueueMessages.WithLabelValues(typ, "dead_letter").Inc()
	s.log.Warn("message dead-lettered", "message_id", m.ID, "reason", reason)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
