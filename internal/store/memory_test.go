package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

func TestMemoryCreateGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	job := types.Job{ID: "a", Status: types.StatusPending, Notes: []string{"n"}}
	if err := m.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, job); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}

	got, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}
	got.Notes[0] = "mutated"
	again, _ := m.Get(ctx, "a")
	if again.Notes[0] != "n" {
		t.Fatalf("snapshot shares memory with the store")
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, types.Job{ID: "a", Status: types.StatusPending})

	got, err := m.Update(ctx, "a", func(j *types.Job) error {
		j.Status = types.StatusProcessing
		j.ID = "renamed"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != "a" || got.Version != 2 || got.Status != types.StatusProcessing {
		t.Fatalf("unexpected job after update: %+v", got)
	}

	boom := errs.Errorf(errs.KindValidation, "nope")
	_, err = m.Update(ctx, "a", func(j *types.Job) error {
		j.Progress = 50
		return boom
	})
	if err != boom {
		t.Fatalf("expected fn error to be returned unchanged, got %v", err)
	}
	cur, _ := m.Get(ctx, "a")
	if cur.Progress != 0 || cur.Version != 2 {
		t.Fatalf("failed update leaked: %+v", cur)
	}

	if _, err := m.Update(ctx, "missing", func(*types.Job) error { return nil }); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryConcurrentUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, types.Job{ID: "a"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Update(ctx, "a", func(j *types.Job) error {
				j.Progress++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := m.Get(ctx, "a")
	if got.Progress != 50 || got.Version != 51 {
		t.Fatalf("lost updates: progress=%d version=%d", got.Progress, got.Version)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		_ = m.Create(ctx, types.Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	all, err := m.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Fatalf("unexpected order: %v", ids(all))
	}
	two, _ := m.List(ctx, 2)
	if len(two) != 2 || two[1].ID != "mid" {
		t.Fatalf("unexpected limited list: %v", ids(two))
	}
}

func ids(jobs []types.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
