package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

// maxCASAttempts bounds retries when concurrent writers keep bumping the version.
const maxCASAttempts = 16

type jobRow struct {
	ID              string            `gorm:"column:id;type:uuid;primaryKey"`
	Source          string            `gorm:"column:source;type:text;not null"`
	Mode            string            `gorm:"column:mode;type:varchar(32);not null"`
	Status          string            `gorm:"column:status;type:varchar(32);not null;index"`
	Progress        int               `gorm:"column:progress;not null"`
	Stage           string            `gorm:"column:stage;type:varchar(32)"`
	Message         string            `gorm:"column:message;type:text"`
	Artifacts       []types.Artifact  `gorm:"column:artifacts;type:jsonb;serializer:json"`
	Error           string            `gorm:"column:error;type:text"`
	ErrorKind       string            `gorm:"column:error_kind;type:varchar(32)"`
	Notes           []string          `gorm:"column:notes;type:jsonb;serializer:json"`
	Params          types.StartParams `gorm:"column:params;type:jsonb;serializer:json"`
	CancelRequested bool              `gorm:"column:cancel_requested;not null"`
	Attempt         int               `gorm:"column:attempt;not null;default:0"`
	LeaseOwner      string            `gorm:"column:lease_owner;type:varchar(64)"`
	LeaseUntil      *time.Time        `gorm:"column:lease_until"`
	CreatedAt       time.Time         `gorm:"column:created_at;index"`
	UpdatedAt       time.Time         `gorm:"column:updated_at"`
	StartedAt       *time.Time        `gorm:"column:started_at"`
	CompletedAt     *time.Time        `gorm:"column:completed_at"`
	Version         int64             `gorm:"column:version;not null"`
}

func (jobRow) TableName() string { return "clipforge_jobs" }

func rowFromJob(j types.Job) jobRow {
	return jobRow{
		ID:              j.ID,
		Source:          j.Source,
		Mode:            string(j.Mode),
		Status:          string(j.Status),
		Progress:        j.Progress,
		Stage:           j.Stage,
		Message:         j.Message,
		Artifacts:       j.Artifacts,
		Error:           j.Error,
		ErrorKind:       j.ErrorKind,
		Notes:           j.Notes,
		Params:          j.Params,
		CancelRequested: j.CancelRequested,
		Attempt:         j.Attempt,
		LeaseOwner:      j.LeaseOwner,
		LeaseUntil:      j.LeaseUntil,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		Version:         j.Version,
	}
}

func (r jobRow) job() types.Job {
	return types.Job{
		ID:              r.ID,
		Source:          r.Source,
		Mode:            types.Mode(r.Mode),
		Status:          types.JobStatus(r.Status),
		Progress:        r.Progress,
		Stage:           r.Stage,
		Message:         r.Message,
		Artifacts:       r.Artifacts,
		Error:           r.Error,
		ErrorKind:       r.ErrorKind,
		Notes:           r.Notes,
		Params:          r.Params,
		CancelRequested: r.CancelRequested,
		Attempt:         r.Attempt,
		LeaseOwner:      r.LeaseOwner,
		LeaseUntil:      r.LeaseUntil,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		Version:         r.Version,
	}
}

// Postgres stores jobs in PostgreSQL. Updates are optimistic: a write only
// lands if the version it read is still current.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the jobs table.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&jobRow{}); err != nil {
		return nil, fmt.Errorf("migrate jobs table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) Create(ctx context.Context, job types.Job) error {
	job.Version = 1
	row := rowFromJob(job)
	if err := gorm.G[jobRow](p.db).Create(ctx, &row); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.Errorf(errs.KindValidation, "job %s already exists", job.ID)
		}
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Job, error) {
	row, err := gorm.G[jobRow](p.db).Where("id = ?", id).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Job{}, notFound(id)
		}
		return types.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return row.job(), nil
}

func (p *Postgres) List(ctx context.Context, limit int) ([]types.Job, error) {
	q := gorm.G[jobRow](p.db).Order("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]types.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.job())
	}
	return out, nil
}

// Update re-reads and retries when another writer committed first, so fn may
// run more than once.
func (p *Postgres) Update(ctx context.Context, id string, fn func(*types.Job) error) (types.Job, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, err := p.Get(ctx, id)
		if err != nil {
			return types.Job{}, err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			return types.Job{}, err
		}
		next.ID = cur.ID
		next.Version = cur.Version + 1

		row := rowFromJob(next)
		res := p.db.WithContext(ctx).
			Model(&jobRow{}).
			Where("id = ? AND version = ?", id, cur.Version).
			Select("*").
			Updates(&row)
		if res.Error != nil {
			return types.Job{}, fmt.Errorf("update job %s: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return next, nil
		}
	}
	return types.Job{}, fmt.Errorf("update job %s: too many concurrent writers", id)
}

var _ ports.JobStore = (*Postgres)(nil)
