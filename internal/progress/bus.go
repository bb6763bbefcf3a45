// Package progress distributes job progress events.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

const defaultHistory = 500

// Bus keeps a bounded history of sequenced events and fans them out to
// subscribers. Slow subscribers drop events instead of blocking publishers.
type Bus struct {
	mu      sync.RWMutex
	nextSeq uint64
	max     int
	events  []types.ProgressEvent
	subs    map[chan types.ProgressEvent]struct{}
}

func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = defaultHistory
	}
	return &Bus{
		max:    maxEvents,
		events: make([]types.ProgressEvent, 0, maxEvents),
		subs:   make(map[chan types.ProgressEvent]struct{}),
	}
}

// Publish assigns the next sequence number and records ev.
func (b *Bus) Publish(_ context.Context, ev types.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	ev.Seq = b.nextSeq
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		trim := len(b.events) - b.max
		b.events = append([]types.ProgressEvent(nil), b.events[trim:]...)
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Since returns retained events with sequence strictly greater than seq.
// An empty jobID matches every job.
func (b *Bus) Since(jobID string, seq uint64) []types.ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.ProgressEvent
	for _, ev := range b.events {
		if ev.Seq > seq && (jobID == "" || ev.JobID == jobID) {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe returns a channel of future events and a func that releases it.
func (b *Bus) Subscribe(buffer int) (<-chan types.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan types.ProgressEvent, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Fanout publishes every event to all sinks and joins their errors.
type Fanout []ports.ProgressSink

func (f Fanout) Publish(ctx context.Context, ev types.ProgressEvent) error {
	var errList []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

var (
	_ ports.ProgressSink = (*Bus)(nil)
	_ ports.ProgressSink = Fanout(nil)
)
