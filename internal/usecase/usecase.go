package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

type Deps struct {
	Video    ports.VideoTool
	ASR      ports.ASR
	Analyzer ports.HighlightAnalyzer
	Log      logrus.FieldLogger
}

type Config struct {
	ClipCount   int
	MinDuration time.Duration
	MaxDuration time.Duration
	Parallelism int
	ChunkLength time.Duration
	OutWidth    int
	OutHeight   int
}

func (c Config) withDefaults() Config {
	if c.ClipCount <= 0 {
		c.ClipCount = 3
	}
	if c.MinDuration <= 0 {
		c.MinDuration = 15 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 60 * time.Second
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 2
	}
	if c.ChunkLength <= 0 {
		c.ChunkLength = 600 * time.Second
	}
	if c.OutWidth <= 0 || c.OutHeight <= 0 {
		c.OutWidth, c.OutHeight = 1080, 1920
	}
	return c
}

// Reporter records stage progress. Report returns an errs.Cancelled error
// once the job has been asked to stop.
type Reporter interface {
	Report(ctx context.Context, stage string, progress int, msg string) error
}

type Usecase struct {
	d   Deps
	cfg Config
}

func New(d Deps, cfg Config) Usecase {
	if d.Log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		d.Log = l
	}
	return Usecase{d: d, cfg: cfg.withDefaults()}
}

type Input struct {
	JobID   string
	Source  string
	Mode    types.Mode
	Params  types.StartParams
	WorkDir string
}

// OutputFile is a local file to publish together with its artifact metadata.
type OutputFile struct {
	Path     string
	Artifact types.Artifact
}

type Output struct {
	Files    []OutputFile
	Manifest types.Manifest
	Notes    []string
}

// Run executes the pipeline for in.Mode. Scratch and output files are
// written below in.WorkDir; the caller owns its cleanup.
func (u Usecase) Run(ctx context.Context, in Input, rep Reporter) (Output, error) {
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return Output{}, errs.E(errs.KindInternal, "create work dir", err)
	}
	log := u.d.Log.WithFields(logrus.Fields{"job_id": in.JobID, "mode": in.Mode})
	log.Info("pipeline started")

	var (
		out Output
		err error
	)
	switch in.Mode {
	case types.ModeViralClip:
		out, err = u.runViral(ctx, in, rep, log)
	case types.ModeCaption:
		out, err = u.runCaption(ctx, in, rep, log)
	case types.ModeWatermarkRemoval:
		out, err = u.runWatermark(ctx, in, rep, log)
	case types.ModeCaptionRemoval:
		out, err = u.runCaptionRemoval(ctx, in, rep, log)
	default:
		return Output{}, errs.Errorf(errs.KindValidation, "unknown mode %q", in.Mode)
	}
	if err != nil {
		// Stages killed by a cancelled context report their own kind.
		if ctx.Err() != nil && !errors.Is(err, errs.Cancelled) {
			err = errs.E(errs.KindCancelled, string(in.Mode), err)
		}
		log.WithError(err).WithField("kind", errs.KindOf(err)).Warn("pipeline failed")
		return Output{}, err
	}

	out.Manifest.JobID = in.JobID
	out.Manifest.Source = filepath.Base(in.Source)
	out.Manifest.Mode = in.Mode
	out.Manifest.Notes = out.Notes
	if out.Manifest.Clips == nil {
		out.Manifest.Clips = []types.ManifestClip{}
	}
	mf, err := writeManifest(in.WorkDir, out.Manifest)
	if err != nil {
		return Output{}, err
	}
	out.Files = append(out.Files, mf)
	log.WithField("files", len(out.Files)).Info("pipeline finished")
	return out, nil
}

func (u Usecase) probe(ctx context.Context, in Input, rep Reporter, progress int) (types.MediaInfo, error) {
	if err := rep.Report(ctx, "probe", progress, "inspecting source"); err != nil {
		return types.MediaInfo{}, err
	}
	info, err := u.d.Video.Probe(ctx, in.Source)
	if err != nil {
		if ctx.Err() != nil {
			return types.MediaInfo{}, errs.E(errs.KindCancelled, "probe", err)
		}
		return types.MediaInfo{}, errs.Wrap(errs.KindUnsupportedMedia, "probe", err)
	}
	return info, nil
}

func writeManifest(dir string, m types.Manifest) (OutputFile, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return OutputFile{}, errs.E(errs.KindInternal, "marshal manifest", err)
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return OutputFile{}, errs.E(errs.KindInternal, "write manifest", err)
	}
	return OutputFile{Path: path, Artifact: types.Artifact{Name: "manifest.json", Kind: types.ArtifactManifest}}, nil
}

// between maps done/total onto [lo, hi].
func between(lo, hi, done, total int) int {
	if total <= 0 {
		return hi
	}
	return lo + (hi-lo)*done/total
}

func clipName(i int) string { return fmt.Sprintf("clip-%03d.mp4", i+1) }
