package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/domain/masks"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	detectWidth  = 320
	detectFrames = 12
)

func (u Usecase) runWatermark(ctx context.Context, in Input, rep Reporter, log logrus.FieldLogger) (Output, error) {
	if in.Params.Mask == nil {
		return Output{}, errs.Errorf(errs.KindRender, "watermark removal without a mask region")
	}
	info, err := u.probe(ctx, in, rep, 10)
	if err != nil {
		return Output{}, err
	}
	region, ok := masks.Clamp(*in.Params.Mask, info.Width, info.Height)
	if !ok {
		return Output{}, errs.Errorf(errs.KindRender, "mask %+v lies outside the %dx%d frame", *in.Params.Mask, info.Width, info.Height)
	}
	return u.removeRegion(ctx, in, region, "watermark_removed.mp4", info, rep, nil, log)
}

func (u Usecase) runCaptionRemoval(ctx context.Context, in Input, rep Reporter, log logrus.FieldLogger) (Output, error) {
	info, err := u.probe(ctx, in, rep, 10)
	if err != nil {
		return Output{}, err
	}
	if err := rep.Report(ctx, "detect", 15, "locating captions"); err != nil {
		return Output{}, err
	}

	var (
		region types.MaskRegion
		notes  []string
		ok     bool
	)
	if in.Params.Mask != nil {
		if region, ok = masks.Clamp(*in.Params.Mask, info.Width, info.Height); !ok {
			m := *in.Params.Mask
			log.WithField("mask", fmt.Sprintf("%d,%d,%d,%d", m.X, m.Y, m.Width, m.Height)).Warn("mask outside frame, detecting captions")
			notes = append(notes, fmt.Sprintf("mask %d,%d,%d,%d lies outside the %dx%d frame; detected the caption band instead", m.X, m.Y, m.Width, m.Height, info.Width, info.Height))
		}
	}
	if !ok {
		region = u.detectCaptions(ctx, in, info, log)
		if region == masks.Fallback(info.Width, info.Height) {
			notes = append(notes, "no caption band detected; removed the bottom 15% of the frame")
		} else {
			notes = append(notes, fmt.Sprintf("caption band detected at %d,%d,%d,%d", region.X, region.Y, region.Width, region.Height))
		}
	}
	return u.removeRegion(ctx, in, region, "captions_removed.mp4", info, rep, notes, log)
}

func (u Usecase) detectCaptions(ctx context.Context, in Input, info types.MediaInfo, log logrus.FieldLogger) types.MaskRegion {
	fs, err := u.d.Video.SampleFrames(ctx, in.Source, 0, info.Duration, detectWidth, detectFrames, info)
	if err != nil {
		log.WithError(err).Warn("frame sampling failed, using bottom band")
		return masks.Fallback(info.Width, info.Height)
	}
	if r, ok := masks.DetectCaptionBand(fs, info.Width, info.Height); ok {
		return r
	}
	return masks.Fallback(info.Width, info.Height)
}

func (u Usecase) removeRegion(
	ctx context.Context,
	in Input,
	region types.MaskRegion,
	name string,
	info types.MediaInfo,
	rep Reporter,
	notes []string,
	log logrus.FieldLogger,
) (Output, error) {
	start := 15
	if in.Mode == types.ModeCaptionRemoval {
		start = 20
	}
	if err := rep.Report(ctx, "remove", start, "removing region"); err != nil {
		return Output{}, err
	}
	log.WithField("region", fmt.Sprintf("%d,%d,%d,%d", region.X, region.Y, region.Width, region.Height)).Info("removing region")

	out := filepath.Join(in.WorkDir, name)
	if err := u.d.Video.RemoveRegion(ctx, in.Source, region, out); err != nil {
		return Output{}, errs.E(errs.KindRender, "remove region", err)
	}
	if err := rep.Report(ctx, "remove", 90, "region removed"); err != nil {
		return Output{}, err
	}
	return Output{
		Files: []OutputFile{{Path: out, Artifact: types.Artifact{Name: name, Kind: types.ArtifactVideo, EndSec: info.Duration.Seconds()}}},
		Notes: notes,
	}, nil
}
