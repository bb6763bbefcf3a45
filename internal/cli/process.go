package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/orchestrator"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/types"
)

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <input>",
		Short: "Run a job end to end and download its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0])
		},
	}
	cmd.Flags().String("mode", string(types.ModeViralClip), "caption | viral-clip | watermark-removal | caption-removal")
	cmd.Flags().String("out", "out", "Directory receiving a run folder with the artifacts")
	addParamFlags(cmd)
	return cmd
}

func runProcess(cmd *cobra.Command, input string) error {
	mode, _ := cmd.Flags().GetString("mode")
	outDir, _ := cmd.Flags().GetString("out")
	params, err := paramsFromFlags(cmd)
	if err != nil {
		return err
	}
	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	sctx, stop := signalContext(0)
	defer stop()

	s, err := open(sctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	ctx, cancel := context.WithTimeout(sctx, s.cfg.JobTimeout)
	defer cancel()
	if types.Mode(mode) == types.ModeViralClip {
		if err := s.cfg.RequireLLM(); err != nil {
			return err
		}
	}
	s.svc.StartWorkers(ctx)

	job, err := s.svc.Orchestrator.Submit(ctx, orchestrator.SubmitRequest{Source: absIn, Mode: types.Mode(mode)})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "job %s submitted\n", job.ID)
	if _, err := s.svc.Orchestrator.Start(ctx, job.ID, params); err != nil {
		return err
	}

	done, err := s.svc.Wait(ctx, job.ID, pollInterval, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		if ctx.Err() != nil {
			_, _ = s.svc.Orchestrator.Cancel(context.Background(), job.ID)
		}
		return err
	}
	if err := jobError(done); err != nil {
		return err
	}

	dest := pipeline.RunDir(outDir, absIn, time.Now())
	paths, err := download(ctx, s, done, dest)
	if err != nil {
		return err
	}
	for _, n := range done.Notes {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", n)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s (%d files): %s\n", done.Message, len(paths), dest)
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
