package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/orchestrator"
	"github.com/forPelevin/clipforge/internal/types"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <input>",
		Short: "Register a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("submit"); err != nil {
				return err
			}
			job, err := s.svc.Orchestrator.Submit(ctx, orchestrator.SubmitRequest{Source: absPath(args[0]), Mode: types.Mode(mode)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return nil
		},
	}
	cmd.Flags().String("mode", string(types.ModeViralClip), "caption | viral-clip | watermark-removal | caption-removal")
	return cmd
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <job-id>",
		Short: "Start a pending job",
		Long:  "Start a pending job. With the local queue the command runs the job and waits for it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramsFromFlags(cmd)
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
			if err := s.durable("start"); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(sctx, s.cfg.JobTimeout)
			defer cancel()
			s.svc.StartWorkers(ctx)

			job, err := s.svc.Orchestrator.Start(ctx, args[0], params)
			if err != nil {
				return err
			}
			if !s.svc.LocalQueue() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", job.ID, job.Status)
				return nil
			}
			done, err := s.svc.Wait(ctx, job.ID, pollInterval, progressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), done)
			return jobError(done)
		},
	}
	addParamFlags(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			follow, _ := cmd.Flags().GetBool("follow")
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("status"); err != nil {
				return err
			}
			var job types.Job
			if follow {
				job, err = s.svc.Wait(ctx, args[0], pollInterval, progressPrinter(cmd.ErrOrStderr()))
			} else {
				job, err = s.svc.Orchestrator.Status(ctx, args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the job as JSON")
	cmd.Flags().Bool("follow", false, "Stream progress until the job finishes")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("list"); err != nil {
				return err
			}
			jobs, err := s.svc.Orchestrator.List(ctx, limit)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-17s  %-10s  %3d%%  %s\n",
					j.ID, j.Mode, j.Status, j.Progress, j.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Max jobs to show (0 for all)")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Ask a pending or processing job to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("cancel"); err != nil {
				return err
			}
			job, err := s.svc.Orchestrator.Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", job.ID, job.Message)
			return nil
		},
	}
}
