package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/ports"
)

const (
	JobsStream    = "clipforge:jobs"
	ConsumerGroup = "clipforge-workers"

	readBlock    = 5 * time.Second
	retryBackoff = 2 * time.Second
	pendingBatch = 100

	defaultClaimIdle = 5 * time.Minute
)

// Streams is a Redis Streams queue. Messages are acknowledged only after the
// handler succeeds. A message left unacknowledged for longer than the claim
// idle time is claimed by a running consumer and handled again.
type Streams struct {
	client   *redis.Client
	consumer string
	log      logrus.FieldLogger

	claimIdle time.Duration
	timeout   time.Duration
}

type StreamsOption func(*Streams)

// WithClaimIdle sets how long a delivery stays unacknowledged before another
// consumer may claim it.
func WithClaimIdle(d time.Duration) StreamsOption {
	return func(s *Streams) {
		if d > 0 {
			s.claimIdle = d
		}
	}
}

// WithHandlerTimeout bounds a single job. Zero means no limit.
func WithHandlerTimeout(d time.Duration) StreamsOption {
	return func(s *Streams) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStreams ensures the consumer group exists.
func NewStreams(ctx context.Context, client *redis.Client, consumer string, log logrus.FieldLogger, opts ...StreamsOption) (*Streams, error) {
	if log == nil {
		log = logrus.New()
	}
	if consumer == "" {
		consumer = "worker-1"
	}
	s := &Streams{client: client, consumer: consumer, log: log, claimIdle: defaultClaimIdle}
	for _, o := range opts {
		o(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	err := client.XGroupCreateMkStream(ctx, JobsStream, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return s, nil
}

func (s *Streams) Enqueue(ctx context.Context, jobID string) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: JobsStream,
		Values: map[string]any{
			"job_id":      jobID,
			"enqueued_at": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("add job %s to stream: %w", jobID, err)
	}
	return nil
}

// Consume runs until ctx is done. Stale pending messages are reclaimed on
// start and then every half claim idle period.
func (s *Streams) Consume(ctx context.Context, h Handler) error {
	var lastReclaim time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(lastReclaim) >= s.claimIdle/2 {
			if err := s.reclaimPending(ctx, h); err != nil {
				s.log.WithError(err).Warn("reclaim pending messages")
			}
			lastReclaim = time.Now()
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: s.consumer,
			Streams:  []string{JobsStream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WithError(err).Warn("read from stream")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
			continue
		}
		for _, st := range streams {
			for _, msg := range st.Messages {
				s.handle(ctx, msg, h)
			}
		}
	}
}

// reclaimPending claims deliveries idle for at least the claim idle time.
// XCLAIM rechecks the idle time, so a message claimed by another consumer in
// the meantime is skipped.
func (s *Streams) reclaimPending(ctx context.Context, h Handler) error {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: JobsStream,
		Group:  ConsumerGroup,
		Idle:   s.claimIdle,
		Start:  "-",
		End:    "+",
		Count:  pendingBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("list pending messages: %w", err)
	}
	if len(pending) > 0 {
		s.log.WithField("count", len(pending)).Info("reclaiming pending messages")
	}
	for _, p := range pending {
		msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   JobsStream,
			Group:    ConsumerGroup,
			Consumer: s.consumer,
			MinIdle:  s.claimIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			s.log.WithError(err).WithField("message_id", p.ID).Warn("claim message")
			continue
		}
		for _, msg := range msgs {
			s.handle(ctx, msg, h)
		}
	}
	return nil
}

func (s *Streams) handle(ctx context.Context, msg redis.XMessage, h Handler) {
	log := s.log.WithField("message_id", msg.ID)
	id, ok := msg.Values["job_id"].(string)
	if !ok || id == "" {
		log.Warn("dropping message without job_id")
		s.ack(ctx, msg.ID, log)
		return
	}
	log = log.WithField("job_id", id)
	jctx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()
	if err := h(jctx, id); err != nil {
		// Left pending; reclaimed once idle.
		log.WithError(err).Error("job handler failed")
		return
	}
	s.ack(ctx, msg.ID, log)
}

func (s *Streams) ack(ctx context.Context, id string, log logrus.FieldLogger) {
	if err := s.client.XAck(ctx, JobsStream, ConsumerGroup, id).Err(); err != nil {
		log.WithError(err).Warn("ack message")
	}
}

var _ ports.Queue = (*Streams)(nil)
