// Package store keeps job records. Every write goes through Update, which
// applies a mutation atomically against the latest committed record.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

// Memory is a process-local job store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]types.Job)}
}

func (m *Memory) Create(_ context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return errs.Errorf(errs.KindValidation, "job %s already exists", job.ID)
	}
	job.Version = 1
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return types.Job{}, notFound(id)
	}
	return j.Clone(), nil
}

// List returns up to limit jobs, newest first. limit <= 0 means all.
func (m *Memory) List(_ context.Context, limit int) ([]types.Job, error) {
	m.mu.RLock()
	out := make([]types.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update runs fn under the store lock, so it is called exactly once.
func (m *Memory) Update(_ context.Context, id string, fn func(*types.Job) error) (types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[id]
	if !ok {
		return types.Job{}, notFound(id)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return types.Job{}, err
	}
	next.ID = cur.ID
	next.Version = cur.Version + 1
	m.jobs[id] = next
	return next.Clone(), nil
}

func notFound(id string) error {
	return errs.Errorf(errs.KindNotFound, "job %s not found", id)
}

var _ ports.JobStore = (*Memory)(nil)
