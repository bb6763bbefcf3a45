// Package orchestrator owns the job lifecycle: submission, start, execution
// on a worker, progress, cancellation and result retrieval.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/domain/masks"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
	"github.com/forPelevin/clipforge/internal/usecase"
)

// Runner executes the media pipeline of one job.
type Runner interface {
	Run(ctx context.Context, in usecase.Input, rep usecase.Reporter) (usecase.Output, error)
}

// Prober reads source metadata so Start can check mask regions against the
// frame before the job is queued.
type Prober interface {
	Probe(ctx context.Context, in string) (types.MediaInfo, error)
}

type Deps struct {
	Store     ports.JobStore
	Artifacts ports.ArtifactStore
	Queue     ports.Queue
	Progress  ports.ProgressSink
	Runner    Runner
	Prober    Prober
	Log       logrus.FieldLogger

	// Defaults fill the zero fields of StartParams. They must match the
	// runner's own defaults.
	Defaults types.StartParams

	// WorkDir holds per-job scratch directories, jobs/<id>.
	WorkDir string
	// LeaseTTL is how long an execution owns a job without renewing.
	LeaseTTL time.Duration
	Now      func() time.Time
}

// ErrLeased is returned by Execute when another live execution owns the job.
// Queues should redeliver the job later.
var ErrLeased = errors.New("job is leased by another execution")

// errLeaseLost stops an execution whose lease was taken over.
var errLeaseLost = errors.New("job lease lost")

const defaultLeaseTTL = 2 * time.Minute

type Orchestrator struct {
	d        Deps
	validate *validator.Validate

	pubMu   sync.Mutex
	lastPub map[string]published
}

type published struct {
	version  int64
	terminal bool
}

func New(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logrus.New()
	}
	if d.WorkDir == "" {
		d.WorkDir = ".cache"
	}
	if d.LeaseTTL <= 0 {
		d.LeaseTTL = defaultLeaseTTL
	}
	if d.Defaults.ClipCount <= 0 {
		d.Defaults.ClipCount = 3
	}
	if d.Defaults.MinDuration <= 0 {
		d.Defaults.MinDuration = 15 * time.Second
	}
	if d.Defaults.MaxDuration <= 0 {
		d.Defaults.MaxDuration = 60 * time.Second
	}
	return &Orchestrator{d: d, validate: validator.New(), lastPub: make(map[string]published)}
}

// SupportedExtensions are the source containers accepted by Submit.
var SupportedExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v"}

type SubmitRequest struct {
	Source string     `validate:"required"`
	Mode   types.Mode `validate:"required"`
}

// Submit registers a pending job for an existing source file.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (types.Job, error) {
	if err := o.validate.Struct(req); err != nil {
		return types.Job{}, errs.E(errs.KindValidation, "submit", err)
	}
	if !req.Mode.Valid() {
		return types.Job{}, errs.Errorf(errs.KindValidation, "unknown mode %q", req.Mode)
	}
	if !supported(req.Source) {
		return types.Job{}, errs.Errorf(errs.KindValidation, "unsupported source extension %q", filepath.Ext(req.Source))
	}
	st, err := os.Stat(req.Source)
	if err != nil || st.IsDir() {
		return types.Job{}, errs.Errorf(errs.KindValidation, "source %s is not a readable file", req.Source)
	}

	now := o.d.Now().UTC()
	job := types.Job{
		ID:        uuid.NewString(),
		Source:    req.Source,
		Mode:      req.Mode,
		Status:    types.StatusPending,
		Message:   "waiting to start",
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := o.d.Store.Create(ctx, job); err != nil {
		return types.Job{}, errs.Wrap(errs.KindInternal, "create job", err)
	}
	o.publish(ctx, job)
	o.d.Log.WithFields(logrus.Fields{"job_id": job.ID, "mode": job.Mode}).Info("job submitted")
	return job, nil
}

// Start validates params, moves a pending job to processing and enqueues it.
// It returns without waiting for execution. Zero params take the configured
// defaults, and the resolved values are recorded on the job.
func (o *Orchestrator) Start(ctx context.Context, id string, params types.StartParams) (types.Job, error) {
	if err := o.validate.Struct(params); err != nil {
		return types.Job{}, errs.E(errs.KindValidation, "start params", err)
	}
	cur, err := o.d.Store.Get(ctx, id)
	if err != nil {
		return types.Job{}, err
	}
	params = o.resolve(params)
	if err := o.checkParams(ctx, cur, params); err != nil {
		return types.Job{}, err
	}

	job, err := o.d.Store.Update(ctx, id, func(j *types.Job) error {
		if j.Status != types.StatusPending {
			return errs.Errorf(errs.KindValidation, "job %s is %s, only pending jobs can start", j.ID, j.Status)
		}
		now := o.d.Now().UTC()
		j.Status = types.StatusProcessing
		j.Stage = "queued"
		j.Message = "queued"
		j.Params = params
		j.StartedAt = &now
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		return types.Job{}, err
	}
	o.publish(ctx, job)

	if err := o.d.Queue.Enqueue(ctx, id); err != nil {
		o.fail(ctx, id, "", errs.E(errs.KindInternal, "enqueue", err))
		return types.Job{}, errs.E(errs.KindInternal, "enqueue", err)
	}
	o.d.Log.WithField("job_id", id).Info("job started")
	return job, nil
}

func (o *Orchestrator) resolve(p types.StartParams) types.StartParams {
	if p.ClipCount <= 0 {
		p.ClipCount = o.d.Defaults.ClipCount
	}
	if p.MinDuration <= 0 {
		p.MinDuration = o.d.Defaults.MinDuration
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = o.d.Defaults.MaxDuration
	}
	return p
}

// checkParams rejects every parameter problem the pipeline could otherwise
// only discover after it started.
func (o *Orchestrator) checkParams(ctx context.Context, job types.Job, p types.StartParams) error {
	switch job.Mode {
	case types.ModeViralClip:
		if p.MaxDuration < p.MinDuration {
			return errs.Errorf(errs.KindValidation, "max duration %s is below min duration %s", p.MaxDuration, p.MinDuration)
		}
	case types.ModeWatermarkRemoval:
		if p.Mask == nil {
			return errs.Errorf(errs.KindValidation, "watermark removal requires a mask region")
		}
	}
	if p.Mask == nil || o.d.Prober == nil {
		return nil
	}
	if job.Mode != types.ModeWatermarkRemoval && job.Mode != types.ModeCaptionRemoval {
		return nil
	}
	info, err := o.d.Prober.Probe(ctx, job.Source)
	if err != nil {
		// The pipeline reports unreadable media with its own kind.
		o.d.Log.WithError(err).WithField("job_id", job.ID).Debug("probe before start failed")
		return nil
	}
	if _, ok := masks.Clamp(*p.Mask, info.Width, info.Height); !ok {
		m := *p.Mask
		return errs.Errorf(errs.KindValidation, "mask %d,%d,%d,%d lies outside the %dx%d frame", m.X, m.Y, m.Width, m.Height, info.Width, info.Height)
	}
	return nil
}

// Status returns the latest committed snapshot. It never blocks on execution.
func (o *Orchestrator) Status(ctx context.Context, id string) (types.Job, error) {
	return o.d.Store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, limit int) ([]types.Job, error) {
	return o.d.Store.List(ctx, limit)
}

// Result returns the artifacts of a completed job.
func (o *Orchestrator) Result(ctx context.Context, id string) ([]types.Artifact, error) {
	job, err := o.d.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusCompleted {
		if job.Status == types.StatusFailed {
			return nil, errs.Errorf(errs.KindValidation, "job %s failed: %s", id, job.Error)
		}
		return nil, errs.Errorf(errs.KindValidation, "job %s is %s", id, job.Status)
	}
	return job.Artifacts, nil
}

// Open streams one artifact of a completed job.
func (o *Orchestrator) Open(ctx context.Context, id, name string) (io.ReadCloser, types.Artifact, error) {
	arts, err := o.Result(ctx, id)
	if err != nil {
		return nil, types.Artifact{}, err
	}
	for _, a := range arts {
		if a.Name != name {
			continue
		}
		rc, err := o.d.Artifacts.Open(ctx, a.Key)
		if err != nil {
			return nil, types.Artifact{}, errs.Wrap(errs.KindInternal, "open artifact", err)
		}
		return rc, a, nil
	}
	return nil, types.Artifact{}, errs.Errorf(errs.KindNotFound, "job %s has no artifact %q", id, name)
}

// Cancel asks a pending or processing job to stop. The worker honors it at
// the next stage boundary.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (types.Job, error) {
	job, err := o.d.Store.Update(ctx, id, func(j *types.Job) error {
		if j.Status.Terminal() {
			return errs.Errorf(errs.KindValidation, "job %s is already %s", j.ID, j.Status)
		}
		j.CancelRequested = true
		j.Message = "cancellation requested"
		j.UpdatedAt = o.d.Now().UTC()
		return nil
	})
	if err != nil {
		return types.Job{}, err
	}
	o.publish(ctx, job)
	o.d.Log.WithField("job_id", id).Info("job cancellation requested")
	return job, nil
}

// Execute is the worker entry point. It leases the job, runs the mode
// pipeline, publishes artifacts and records the terminal state. Jobs that
// are not processing are skipped, so redelivered queue messages are
// harmless. A job leased by another live execution returns ErrLeased.
func (o *Orchestrator) Execute(ctx context.Context, id string) error {
	token := uuid.NewString()
	job, err := o.acquire(ctx, id, token)
	if errors.Is(err, errNotRunnable) {
		o.d.Log.WithField("job_id", id).Debug("skipping job that is not processing")
		return nil
	}
	if err != nil {
		return err
	}
	log := o.d.Log.WithFields(logrus.Fields{"job_id": id, "mode": job.Mode, "attempt": job.Attempt})

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go o.heartbeat(runCtx, id, token, stop, log)

	jobDir := filepath.Join(o.d.WorkDir, "jobs", id)
	work := filepath.Join(jobDir, strconv.Itoa(job.Attempt))
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			log.WithError(err).Warn("remove work dir")
		}
		_ = os.Remove(jobDir)
	}()

	rep := &reporter{o: o, id: id, token: token}
	out, runErr := o.d.Runner.Run(runCtx, usecase.Input{
		JobID:   id,
		Source:  job.Source,
		Mode:    job.Mode,
		Params:  job.Params,
		WorkDir: work,
	}, rep)
	if runErr == nil {
		runErr = rep.Report(runCtx, "finalize", 95, "publishing artifacts")
	}
	if errors.Is(context.Cause(runCtx), errLeaseLost) || errors.Is(runErr, errLeaseLost) {
		log.Warn("lease taken over, abandoning execution")
		return errLeaseLost
	}
	if runErr != nil {
		o.fail(ctx, id, token, runErr)
		return nil
	}

	arts, err := o.publishArtifacts(runCtx, id, out.Files)
	if err != nil {
		o.fail(ctx, id, token, err)
		return nil
	}

	done, err := o.d.Store.Update(ctx, id, func(j *types.Job) error {
		if j.LeaseOwner != token {
			return errLeaseLost
		}
		if j.Status != types.StatusProcessing {
			return errs.Errorf(errs.KindInternal, "job %s left processing during execution", id)
		}
		if j.CancelRequested {
			return errs.E(errs.KindCancelled, "finalize", errors.New("job cancelled"))
		}
		now := o.d.Now().UTC()
		j.Status = types.StatusCompleted
		j.Progress = 100
		j.Stage = "finalize"
		j.Message = completionMessage(j.Mode, arts)
		j.Artifacts = arts
		j.Notes = append(j.Notes, out.Notes...)
		j.LeaseOwner = ""
		j.LeaseUntil = nil
		j.UpdatedAt = now
		j.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errLeaseLost) {
		log.Warn("lease taken over before completion")
		return err
	}
	if err != nil {
		o.fail(ctx, id, token, err)
		return nil
	}
	o.publish(ctx, done)
	log.WithField("artifacts", len(arts)).Info("job completed")
	return nil
}

var errNotRunnable = errors.New("job is not processing")

// acquire takes the execution lease. An expired lease is taken over.
func (o *Orchestrator) acquire(ctx context.Context, id, token string) (types.Job, error) {
	return o.d.Store.Update(ctx, id, func(j *types.Job) error {
		if j.Status != types.StatusProcessing {
			return errNotRunnable
		}
		now := o.d.Now().UTC()
		if j.LeaseOwner != "" && j.LeaseUntil != nil && now.Before(*j.LeaseUntil) {
			return ErrLeased
		}
		until := now.Add(o.d.LeaseTTL)
		j.Attempt++
		j.LeaseOwner = token
		j.LeaseUntil = &until
		return nil
	})
}

// heartbeat renews the lease until ctx ends. Losing the lease cancels the
// execution.
func (o *Orchestrator) heartbeat(ctx context.Context, id, token string, stop context.CancelCauseFunc, log logrus.FieldLogger) {
	t := time.NewTicker(o.d.LeaseTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		_, err := o.d.Store.Update(ctx, id, func(j *types.Job) error {
			if j.LeaseOwner != token || j.Status != types.StatusProcessing {
				return errLeaseLost
			}
			until := o.d.Now().UTC().Add(o.d.LeaseTTL)
			j.LeaseUntil = &until
			return nil
		})
		switch {
		case errors.Is(err, errLeaseLost):
			stop(errLeaseLost)
			return
		case err != nil && ctx.Err() == nil:
			log.WithError(err).Warn("renew lease")
		}
	}
}

func (o *Orchestrator) publishArtifacts(ctx context.Context, id string, files []usecase.OutputFile) ([]types.Artifact, error) {
	arts := make([]types.Artifact, 0, len(files))
	for _, f := range files {
		stored, err := o.d.Artifacts.Put(ctx, id, f.Artifact.Name, f.Path)
		if err != nil {
			return nil, errs.E(errs.KindInternal, "store artifact "+f.Artifact.Name, err)
		}
		a := f.Artifact
		a.Key = stored.Key
		a.Size = stored.Size
		arts = append(arts, a)
	}
	return arts, nil
}

// fail records the terminal failure of a job and then drops any artifacts
// stored for it. token is the execution's lease; empty means the job was
// never leased. A job that is already terminal, or leased by someone else,
// is left alone together with its artifacts.
func (o *Orchestrator) fail(ctx context.Context, id, token string, cause error) {
	kind := errs.KindOf(cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) || ctx.Err() != nil {
		kind = errs.KindCancelled
	}
	log := o.d.Log.WithFields(logrus.Fields{"job_id": id, "kind": kind})

	// The store must still be reachable after the worker context is gone.
	uctx := context.WithoutCancel(ctx)
	job, err := o.d.Store.Update(uctx, id, func(j *types.Job) error {
		if j.Status.Terminal() {
			return errs.Errorf(errs.KindValidation, "job %s is already %s", id, j.Status)
		}
		if token != "" && j.LeaseOwner != token {
			return errLeaseLost
		}
		now := o.d.Now().UTC()
		j.Status = types.StatusFailed
		j.Error = cause.Error()
		j.ErrorKind = string(kind)
		j.Message = "failed"
		if kind == errs.KindCancelled {
			j.Message = "cancelled"
		}
		if j.Progress >= 100 {
			j.Progress = 99
		}
		j.Artifacts = nil
		j.LeaseOwner = ""
		j.LeaseUntil = nil
		j.UpdatedAt = now
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		log.WithError(err).Error("record job failure")
		return
	}
	if err := o.d.Artifacts.Discard(uctx, id); err != nil {
		log.WithError(err).Warn("discard artifacts")
	}
	o.publish(uctx, job)
	log.WithError(cause).Warn("job failed")
}

// publish forwards a committed record to the progress sink. Records older
// than the last one published for the job are dropped, so concurrent
// writers cannot reorder events.
func (o *Orchestrator) publish(ctx context.Context, j types.Job) {
	if o.d.Progress == nil {
		return
	}
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if last, ok := o.lastPub[j.ID]; ok && j.Version <= last.version {
		return
	}
	o.lastPub[j.ID] = published{version: j.Version, terminal: j.Status.Terminal()}
	if len(o.lastPub) > maxTracked {
		for id, p := range o.lastPub {
			if p.terminal && id != j.ID {
				delete(o.lastPub, id)
			}
		}
	}

	if err := o.d.Progress.Publish(ctx, j.Event()); err != nil {
		o.d.Log.WithError(err).WithField("job_id", j.ID).Debug("publish progress")
	}
}

const maxTracked = 4096

func completionMessage(mode types.Mode, arts []types.Artifact) string {
	if mode != types.ModeViralClip {
		return "completed"
	}
	n := 0
	for _, a := range arts {
		if a.Kind == types.ArtifactClip {
			n++
		}
	}
	return fmt.Sprintf("completed with %d clips", n)
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
