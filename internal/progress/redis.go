package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	AllChannel = "clipforge:progress:all"
	latestTTL  = 24 * time.Hour
)

// ChannelFor is the pub/sub channel carrying one job's events.
func ChannelFor(jobID string) string { return "clipforge:progress:" + jobID }

func latestKey(jobID string) string { return "clipforge:progress:latest:" + jobID }

// Redis mirrors events to pub/sub and keeps the latest event per job
// under a key that expires after a day.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, ev types.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Publish(ctx, ChannelFor(ev.JobID), data)
	pipe.Publish(ctx, AllChannel, data)
	pipe.Set(ctx, latestKey(ev.JobID), data, latestTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress for %s: %w", ev.JobID, err)
	}
	return nil
}

// Latest returns the last mirrored event of a job. ok is false when none is
// retained.
func (r *Redis) Latest(ctx context.Context, jobID string) (types.ProgressEvent, bool, error) {
	data, err := r.client.Get(ctx, latestKey(jobID)).Bytes()
	if err == redis.Nil {
		return types.ProgressEvent{}, false, nil
	}
	if err != nil {
		return types.ProgressEvent{}, false, fmt.Errorf("get latest progress for %s: %w", jobID, err)
	}
	var ev types.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return types.ProgressEvent{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return ev, true, nil
}

var _ ports.ProgressSink = (*Redis)(nil)
