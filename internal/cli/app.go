package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/domain/masks"
	"github.com/forPelevin/clipforge/internal/logging"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/types"
)

const pollInterval = time.Second

// session is one command invocation's view of the configured backends.
type session struct {
	cfg config.Config
	svc *pipeline.Services
}

func open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	svc, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, svc: svc}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = s.svc.Close(ctx)
}

// durable rejects commands that span invocations while jobs live in memory.
func (s *session) durable(name string) error {
	if s.cfg.DatabaseURL == "" {
		return fmt.Errorf("%s needs DATABASE_URL: without it jobs only live for one process (use `clipforge process`)", name)
	}
	return nil
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() { cancel(); stop() }
}

func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().Int("clips", 0, "Number of clips (viral-clip, default from CLIPS_DEFAULT)")
	cmd.Flags().Int("min", 0, "Min clip duration seconds (viral-clip)")
	cmd.Flags().Int("max", 0, "Max clip duration seconds (viral-clip)")
	cmd.Flags().String("mask", "", `Region to clean as "x,y,w,h" (watermark-removal, caption-removal)`)
}

func paramsFromFlags(cmd *cobra.Command) (types.StartParams, error) {
	clips, _ := cmd.Flags().GetInt("clips")
	minSec, _ := cmd.Flags().GetInt("min")
	maxSec, _ := cmd.Flags().GetInt("max")
	mask, _ := cmd.Flags().GetString("mask")

	if clips < 0 || minSec < 0 || maxSec < 0 {
		return types.StartParams{}, errors.New("--clips, --min and --max must be >= 0")
	}
	p := types.StartParams{
		ClipCount:   clips,
		MinDuration: time.Duration(minSec) * time.Second,
		MaxDuration: time.Duration(maxSec) * time.Second,
	}
	if strings.TrimSpace(mask) != "" {
		r, err := masks.ParseRegion(mask)
		if err != nil {
			return types.StartParams{}, fmt.Errorf("--mask: %w", err)
		}
		p.Mask = &r
	}
	return p, nil
}

func progressPrinter(w io.Writer) func(types.ProgressEvent) {
	return func(ev types.ProgressEvent) {
		stage := ev.Stage
		if stage == "" {
			stage = string(ev.Status)
		}
		fmt.Fprintf(w, "[%3d%%] %s: %s\n", ev.Progress, stage, ev.Message)
	}
}

func printJob(w io.Writer, j types.Job) {
	fmt.Fprintf(w, "id:       %s\n", j.ID)
	fmt.Fprintf(w, "mode:     %s\n", j.Mode)
	fmt.Fprintf(w, "status:   %s\n", j.Status)
	fmt.Fprintf(w, "progress: %d%%\n", j.Progress)
	if j.Stage != "" {
		fmt.Fprintf(w, "stage:    %s\n", j.Stage)
	}
	if j.Message != "" {
		fmt.Fprintf(w, "message:  %s\n", j.Message)
	}
	if j.Error != "" {
		fmt.Fprintf(w, "error:    %s (%s)\n", j.Error, j.ErrorKind)
	}
	for _, n := range j.Notes {
		fmt.Fprintf(w, "note:     %s\n", n)
	}
	for _, a := range j.Artifacts {
		fmt.Fprintf(w, "artifact: %s (%s, %d bytes)\n", a.Name, a.Kind, a.Size)
	}
}

func jobError(j types.Job) error {
	if j.Status == types.StatusFailed {
		return fmt.Errorf("job %s failed (%s): %s", j.ID, j.ErrorKind, j.Error)
	}
	return nil
}
