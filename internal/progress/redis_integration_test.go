//go:build integration

package progress

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/forPelevin/clipforge/internal/types"
)

func TestRedisMirrorsEvents(t *testing.T) {
	addr := os.Getenv("CLIPFORGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLIPFORGE_TEST_REDIS_ADDR is not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := NewRedis(rdb)
	id := uuid.NewString()
	if _, ok, err := r.Latest(ctx, id); err != nil || ok {
		t.Fatalf("expected no event for a new job, ok=%v err=%v", ok, err)
	}

	sub := rdb.Subscribe(ctx, ChannelFor(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := types.ProgressEvent{JobID: id, Version: 4, Status: types.StatusProcessing, Stage: "transcribe", Progress: 30, Message: "chunk 1/2"}
	if err := r.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var onWire types.ProgressEvent
	if err := json.Unmarshal([]byte(msg.Payload), &onWire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if onWire.Version != 4 || onWire.Stage != "transcribe" {
		t.Fatalf("unexpected published event %+v", onWire)
	}

	latest, ok, err := r.Latest(ctx, id)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.Progress != 30 || latest.Version != 4 || latest.Message != "chunk 1/2" {
		t.Fatalf("unexpected latest event %+v", latest)
	}
	if ttl := rdb.TTL(ctx, latestKey(id)).Val(); ttl <= 0 || ttl > latestTTL {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
