package usecase

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/domain/subtitles"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

// runCaption burns captions over the whole source at its own resolution.
func (u Usecase) runCaption(ctx context.Context, in Input, rep Reporter, log logrus.FieldLogger) (Output, error) {
	info, err := u.probe(ctx, in, rep, 5)
	if err != nil {
		return Output{}, err
	}
	tr, err := u.transcribe(ctx, in, info, rep, 10, 40, log)
	if err != nil {
		return Output{}, err
	}
	trFiles, err := writeTranscript(in.WorkDir, tr)
	if err != nil {
		return Output{}, err
	}

	if err := rep.Report(ctx, "render", 45, "rendering captions"); err != nil {
		return Output{}, err
	}
	ass, err := subtitles.Render(tr, 0, info.Duration, subtitles.Frame{Width: info.Width, Height: info.Height})
	if err != nil {
		return Output{}, errs.E(errs.KindRender, "render captions", err)
	}
	assPath := filepath.Join(in.WorkDir, "captions.ass")
	if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
		return Output{}, errs.E(errs.KindRender, "write captions", err)
	}
	defer os.Remove(assPath)

	out := filepath.Join(in.WorkDir, "captioned.mp4")
	if err := u.d.Video.BurnSubtitles(ctx, in.Source, assPath, out); err != nil {
		return Output{}, errs.E(errs.KindRender, "burn captions", err)
	}
	if err := rep.Report(ctx, "render", 95, "captions burned"); err != nil {
		return Output{}, err
	}

	return Output{Files: append(trFiles,
		OutputFile{Path: out, Artifact: types.Artifact{Name: "captioned.mp4", Kind: types.ArtifactVideo, EndSec: info.Duration.Seconds()}},
	)}, nil
}
