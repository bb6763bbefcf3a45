package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/report"
	"github.com/forPelevin/clipforge/internal/types"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <job-id>",
		Short: "Download the artifacts of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, _ := cmd.Flags().GetString("dest")
			urls, _ := cmd.Flags().GetBool("urls")
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("fetch"); err != nil {
				return err
			}
			job, err := s.svc.Orchestrator.Status(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := s.svc.Orchestrator.Result(ctx, job.ID); err != nil {
				return err
			}

			if urls {
				for _, a := range job.Artifacts {
					u, err := s.svc.URL(ctx, a.Key)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.Name, u)
				}
				return nil
			}
			if dest == "" {
				dest = pipeline.RunDir(s.cfg.ArtifactDir, job.Source, time.Now())
			}
			paths, err := download(ctx, s, job, dest)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().String("dest", "", "Destination directory (default: a new run folder under CLIPFORGE_ARTIFACT_DIR)")
	cmd.Flags().Bool("urls", false, "Print download locations instead of copying")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <job-id>",
		Short: "Export a completed job's clips as an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("xlsx")
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.durable("report"); err != nil {
				return err
			}
			job, err := s.svc.Orchestrator.Status(ctx, args[0])
			if err != nil {
				return err
			}
			rc, _, err := s.svc.Orchestrator.Open(ctx, job.ID, "manifest.json")
			if err != nil {
				return err
			}
			m, err := report.ReadManifest(rc)
			rc.Close()
			if err != nil {
				return err
			}
			var tr types.Transcript
			if hasArtifact(job, "transcript.txt") {
				rc, _, err := s.svc.Orchestrator.Open(ctx, job.ID, "transcript.txt")
				if err != nil {
					return err
				}
				tr, err = report.ReadTranscript(rc)
				rc.Close()
				if err != nil {
					return err
				}
			}
			b, err := report.XLSX(job, m, tr)
			if err != nil {
				return err
			}
			if out == "" {
				out = job.ID + ".xlsx"
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("xlsx", "", "Output workbook path (default: <job-id>.xlsx)")
	return cmd
}

func hasArtifact(job types.Job, name string) bool {
	for _, a := range job.Artifacts {
		if a.Name == name {
			return true
		}
	}
	return false
}

// download copies every artifact of job into dest and returns the paths.
func download(ctx context.Context, s *session, job types.Job, dest string) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(job.Artifacts))
	for _, a := range job.Artifacts {
		rc, _, err := s.svc.Orchestrator.Open(ctx, job.ID, a.Name)
		if err != nil {
			return nil, err
		}
		p := filepath.Join(dest, a.Name)
		err = writeFile(p, rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", a.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
