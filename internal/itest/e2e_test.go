//go:build integration

package itest

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/orchestrator"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/types"
)

// speechFixture renders spoken text over a moving test pattern.
func speechFixture(t *testing.T, seconds int) string {
	t.Helper()
	requireTools(t, "espeak-ng", "ffmpeg", "ffprobe")
	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")

	wav := filepath.Join(tmp, "speech.wav")
	text := strings.Repeat("Here is the key idea. Step one: do this. Step two: measure results. This is important. ", 4)
	cmd := exec.Command("espeak-ng", "-w", wav, text)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "testsrc2=s=1280x720:d="+strconv.Itoa(seconds),
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return in
}

func services(t *testing.T, mut func(*config.Config)) *pipeline.Services {
	t.Helper()
	repoRoot := mustRepoRoot(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	tmp := t.TempDir()
	cfg.WorkDir = filepath.Join(tmp, "work")
	cfg.ArtifactDir = filepath.Join(tmp, "out")
	cfg.WhisperBin = filepath.Join(repoRoot, ".cache", "bin", "whisper.cpp")
	cfg.WhisperModel = filepath.Join(repoRoot, ".cache", "models", "ggml-base.bin")
	cfg.QueueBackend = config.QueueLocal
	cfg.DatabaseURL = ""
	cfg.S3Endpoint = ""
	if mut != nil {
		mut(&cfg)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := pipeline.Build(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func runJob(t *testing.T, s *pipeline.Services, src string, mode types.Mode, params types.StartParams) types.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	s.StartWorkers(ctx)

	job, err := s.Orchestrator.Submit(ctx, orchestrator.SubmitRequest{Source: src, Mode: mode})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Orchestrator.Start(ctx, job.ID, params); err != nil {
		t.Fatalf("start: %v", err)
	}
	last := -1
	done, err := s.Wait(ctx, job.ID, 200*time.Millisecond, func(ev types.ProgressEvent) {
		if ev.Progress < last {
			t.Errorf("progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return done
}

func artifactPath(t *testing.T, s *pipeline.Services, j types.Job, name string) string {
	t.Helper()
	for _, a := range j.Artifacts {
		if a.Name == name {
			p, err := s.URL(context.Background(), a.Key)
			if err != nil {
				t.Fatalf("url: %v", err)
			}
			return p
		}
	}
	t.Fatalf("job has no artifact %q: %+v", name, j.Artifacts)
	return ""
}

func TestE2E_ViralClips(t *testing.T) {
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Fatalf("OPENROUTER_API_KEY is required for itest")
	}
	in := speechFixture(t, 40)
	s := services(t, func(c *config.Config) {
		c.ClipMin = 5 * time.Second
		c.ClipMax = 20 * time.Second
	})

	done := runJob(t, s, in, types.ModeViralClip, types.StartParams{ClipCount: 2})
	if done.Status != types.StatusCompleted || done.Progress != 100 {
		t.Fatalf("job did not complete: %+v", done)
	}

	clips := 0
	for _, a := range done.Artifacts {
		if a.Kind != types.ArtifactClip {
			continue
		}
		clips++
		p := artifactPath(t, s, done, a.Name)
		sec, err := probeDurationSeconds(p)
		if err != nil {
			t.Fatalf("probe %s: %v", a.Name, err)
		}
		if sec < 4.5 || sec > 20.5 {
			t.Fatalf("clip %s lasts %.2fs, outside [5, 20]", a.Name, sec)
		}
		w, h, err := probeFrameSize(p)
		if err != nil {
			t.Fatalf("probe %s: %v", a.Name, err)
		}
		if w != 1080 || h != 1920 {
			t.Fatalf("clip %s is %dx%d, want 1080x1920", a.Name, w, h)
		}
	}
	if clips == 0 {
		t.Fatalf("expected at least one clip")
	}
	if _, err := os.Stat(artifactPath(t, s, done, "manifest.json")); err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
}

func TestE2E_CaptionMode(t *testing.T) {
	in := speechFixture(t, 15)
	s := services(t, nil)

	done := runJob(t, s, in, types.ModeCaption, types.StartParams{})
	if done.Status != types.StatusCompleted {
		t.Fatalf("job did not complete: %+v", done)
	}
	p := artifactPath(t, s, done, "captioned.mp4")
	w, h, err := probeFrameSize(p)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Fatalf("captioned video is %dx%d, want source size", w, h)
	}
	b, err := os.ReadFile(artifactPath(t, s, done, "transcript.txt"))
	if err != nil || !strings.Contains(string(b), "s -> ") {
		t.Fatalf("unexpected transcript %q err=%v", b, err)
	}
}

func TestE2E_CaptionRemoval(t *testing.T) {
	in := speechFixture(t, 8)
	s := services(t, nil)

	done := runJob(t, s, in, types.ModeCaptionRemoval, types.StartParams{})
	if done.Status != types.StatusCompleted {
		t.Fatalf("job did not complete: %+v", done)
	}
	if _, err := os.Stat(artifactPath(t, s, done, "captions_removed.mp4")); err != nil {
		t.Fatalf("missing output: %v", err)
	}
}

func TestE2E_CorruptSourceFails(t *testing.T) {
	s := services(t, nil)
	bad := filepath.Join(t.TempDir(), "broken.mp4")
	if err := os.WriteFile(bad, []byte("\x00\x00\x00\x18ftypmp42 truncated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	done := runJob(t, s, bad, types.ModeViralClip, types.StartParams{})
	if done.Status != types.StatusFailed || done.Progress >= 100 || done.Error == "" {
		t.Fatalf("expected failed job below 100, got %+v", done)
	}
}
