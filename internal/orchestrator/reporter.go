package orchestrator

import (
	"context"
	"errors"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

// reporter commits stage progress to the job record. Progress never moves
// backwards and stays below 100 until the job completes.
type reporter struct {
	o     *Orchestrator
	id    string
	token string
}

func (r *reporter) Report(ctx context.Context, stage string, progress int, msg string) error {
	if err := ctx.Err(); err != nil {
		return errs.E(errs.KindCancelled, stage, err)
	}
	job, err := r.o.d.Store.Update(ctx, r.id, func(j *types.Job) error {
		if j.LeaseOwner != r.token {
			return errLeaseLost
		}
		if j.CancelRequested {
			return errs.E(errs.KindCancelled, stage, errors.New("job cancelled"))
		}
		if j.Status != types.StatusProcessing {
			return errs.Errorf(errs.KindInternal, "job %s is %s", j.ID, j.Status)
		}
		if progress > 99 {
			progress = 99
		}
		if progress > j.Progress {
			j.Progress = progress
		}
		j.Stage = stage
		j.Message = msg
		j.UpdatedAt = r.o.d.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	r.o.publish(ctx, job)
	return nil
}
