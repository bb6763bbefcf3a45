package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func TestBusAssignsSequenceAndTrimsHistory(t *testing.T) {
	t.Parallel()

	b := NewBus(3)
	for i := 0; i < 5; i++ {
		if err := b.Publish(context.Background(), types.ProgressEvent{JobID: "a", Progress: i * 10}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got := b.Since("", 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Fatalf("unexpected sequence range %d..%d", got[0].Seq, got[2].Seq)
	}
	if got[0].Time.IsZero() {
		t.Fatalf("expected publish to stamp time")
	}
}

func TestBusSinceFiltersByJobAndSeq(t *testing.T) {
	t.Parallel()

	b := NewBus(0)
	ctx := context.Background()
	_ = b.Publish(ctx, types.ProgressEvent{JobID: "a"})
	_ = b.Publish(ctx, types.ProgressEvent{JobID: "b"})
	_ = b.Publish(ctx, types.ProgressEvent{JobID: "a"})

	got := b.Since("a", 1)
	if len(got) != 1 || got[0].Seq != 3 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestBusSubscribe(t *testing.T) {
	t.Parallel()

	b := NewBus(0)
	ch, release := b.Subscribe(1)
	_ = b.Publish(context.Background(), types.ProgressEvent{JobID: "a", Progress: 5})
	// The second event is dropped: the buffer holds one.
	_ = b.Publish(context.Background(), types.ProgressEvent{JobID: "a", Progress: 10})

	ev := <-ch
	if ev.Progress != 5 {
		t.Fatalf("expected first event, got %+v", ev)
	}
	release()
	release()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after release")
	}
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, types.ProgressEvent) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b := NewBus(0)
	err := Fanout{b, failingSink{err: boom}}.Publish(context.Background(), types.ProgressEvent{JobID: "a"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(b.Since("a", 0)) != 1 {
		t.Fatalf("expected bus to receive event despite other sink failing")
	}
}
