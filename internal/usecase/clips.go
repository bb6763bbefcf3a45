package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/domain/reframe"
	"github.com/forPelevin/clipforge/internal/domain/subtitles"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

func (u Usecase) runViral(ctx context.Context, in Input, rep Reporter, log logrus.FieldLogger) (Output, error) {
	info, err := u.probe(ctx, in, rep, 5)
	if err != nil {
		return Output{}, err
	}
	tr, err := u.transcribe(ctx, in, info, rep, 10, 35, log)
	if err != nil {
		return Output{}, err
	}
	trFiles, err := writeTranscript(in.WorkDir, tr)
	if err != nil {
		return Output{}, err
	}

	req := ports.AnalyzeRequest{
		Count:       firstPositive(in.Params.ClipCount, u.cfg.ClipCount),
		MinDuration: firstPositiveDur(in.Params.MinDuration, u.cfg.MinDuration),
		MaxDuration: firstPositiveDur(in.Params.MaxDuration, u.cfg.MaxDuration),
	}
	if req.MaxDuration < req.MinDuration {
		return Output{}, errs.Errorf(errs.KindAnalysis, "no window fits between %s and %s", req.MinDuration, req.MaxDuration)
	}
	if err := rep.Report(ctx, "analyze", 35, "selecting highlights"); err != nil {
		return Output{}, err
	}
	windows, err := u.d.Analyzer.Analyze(ctx, tr, req)
	if err != nil {
		return Output{}, errs.Wrap(errs.KindAnalysis, "analyze", err)
	}
	if len(windows) == 0 {
		return Output{}, errs.Errorf(errs.KindAnalysis, "no highlight windows found")
	}
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	log.WithField("windows", len(windows)).Info("highlights selected")
	if err := rep.Report(ctx, "analyze", 50, fmt.Sprintf("selected %d highlights", len(windows))); err != nil {
		return Output{}, err
	}

	results := u.renderWindows(ctx, in, info, tr, windows, req.MinDuration, rep, log)
	if err := ctx.Err(); err != nil {
		return Output{}, errs.E(errs.KindCancelled, "render clips", err)
	}

	out := Output{Files: trFiles}
	var firstErr error
	for i, r := range results {
		if r.err != nil {
			if errors.Is(r.err, errs.Cancelled) {
				return Output{}, r.err
			}
			if firstErr == nil {
				firstErr = r.err
			}
			out.Notes = append(out.Notes, fmt.Sprintf("window %d [%.2fs-%.2fs] skipped: %v", i+1, windows[i].Start.Seconds(), windows[i].End.Seconds(), r.err))
			continue
		}
		w := r.window
		name := clipName(i)
		out.Files = append(out.Files, OutputFile{Path: r.path, Artifact: types.Artifact{
			Name:     name,
			Kind:     types.ArtifactClip,
			Window:   i + 1,
			StartSec: w.Start.Seconds(),
			EndSec:   w.End.Seconds(),
			Score:    w.Score,
			Title:    w.Title,
		}})
		out.Manifest.Clips = append(out.Manifest.Clips, types.ManifestClip{
			ID:        fmt.Sprintf("%03d", i+1),
			StartSec:  w.Start.Seconds(),
			EndSec:    w.End.Seconds(),
			Score:     w.Score,
			Title:     w.Title,
			Rationale: w.Rationale,
			File:      name,
		})
	}
	if len(out.Manifest.Clips) == 0 {
		return Output{}, errs.Wrap(errs.KindExtraction, "all windows failed", firstErr)
	}
	return out, nil
}

type windowResult struct {
	window types.HighlightWindow
	path   string
	err    error
}

// renderWindows extracts and captions every window with at most
// cfg.Parallelism windows in flight. Results keep the input order.
func (u Usecase) renderWindows(
	ctx context.Context,
	in Input,
	info types.MediaInfo,
	tr types.Transcript,
	windows []types.HighlightWindow,
	minDur time.Duration,
	rep Reporter,
	log logrus.FieldLogger,
) []windowResult {
	results := make([]windowResult, len(windows))
	sem := make(chan struct{}, u.cfg.Parallelism)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i, w := range windows {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, w types.HighlightWindow) {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			p := between(50, 95, done, len(windows))
			mu.Unlock()
			if err := rep.Report(ctx, "clips", p, fmt.Sprintf("rendering clip %d/%d", i+1, len(windows))); err != nil {
				results[i] = windowResult{err: err}
				return
			}

			wlog := log.WithFields(logrus.Fields{"window": i + 1, "start": w.Start.Seconds(), "end": w.End.Seconds()})
			res := u.renderWindow(ctx, in, info, tr, i, w, minDur, wlog)
			if res.err != nil {
				wlog.WithError(res.err).Warn("window failed")
			}
			results[i] = res

			mu.Lock()
			done++
			p = between(50, 95, done, len(windows))
			mu.Unlock()
			_ = rep.Report(ctx, "clips", p, fmt.Sprintf("finished clip %d/%d", i+1, len(windows)))
		}(i, w)
	}
	wg.Wait()
	return results
}

func (u Usecase) renderWindow(
	ctx context.Context,
	in Input,
	info types.MediaInfo,
	tr types.Transcript,
	i int,
	w types.HighlightWindow,
	minDur time.Duration,
	log logrus.FieldLogger,
) windowResult {
	w, err := clampWindow(w, info.Duration, minDur)
	if err != nil {
		return windowResult{err: err}
	}

	crop := reframe.Centered(info.Width, info.Height)
	fs, err := u.d.Video.SampleFrames(ctx, in.Source, w.Start, w.End, reframe.SampleWidth, reframe.MaxSamples, info)
	if err != nil {
		log.WithError(err).Debug("frame sampling failed, using centered crop")
	} else if c, ok := reframe.Focus(fs, info.Width, info.Height); ok {
		crop = c
	}

	dir := filepath.Join(in.WorkDir, "clips")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return windowResult{err: errs.E(errs.KindInternal, "create clips dir", err)}
	}
	raw := filepath.Join(dir, fmt.Sprintf("raw_%03d.mp4", i+1))
	defer os.Remove(raw)
	spec := ports.ClipSpec{
		Start:     w.Start,
		End:       w.End,
		Crop:      crop,
		OutWidth:  u.cfg.OutWidth,
		OutHeight: u.cfg.OutHeight,
		FrameRate: info.FrameRate,
	}
	if err := u.d.Video.ExtractClip(ctx, in.Source, spec, raw); err != nil {
		return windowResult{err: errs.E(errs.KindExtraction, fmt.Sprintf("extract window %d", i+1), err)}
	}

	ass, err := subtitles.Render(tr, w.Start, w.End, subtitles.Frame{Width: u.cfg.OutWidth, Height: u.cfg.OutHeight})
	if err != nil {
		return windowResult{err: errs.E(errs.KindRender, fmt.Sprintf("captions for window %d", i+1), err)}
	}
	assPath := filepath.Join(dir, fmt.Sprintf("clip_%03d.ass", i+1))
	if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
		return windowResult{err: errs.E(errs.KindRender, "write captions", err)}
	}
	defer os.Remove(assPath)

	final := filepath.Join(dir, clipName(i))
	if err := u.d.Video.BurnSubtitles(ctx, raw, assPath, final); err != nil {
		return windowResult{err: errs.E(errs.KindRender, fmt.Sprintf("burn captions for window %d", i+1), err)}
	}
	return windowResult{window: w, path: final}
}

// clampWindow fits w into [0, total]. A window that shrinks below minDur is
// an extraction error.
func clampWindow(w types.HighlightWindow, total, minDur time.Duration) (types.HighlightWindow, error) {
	if w.Start < 0 {
		w.Start = 0
	}
	if total > 0 && w.End > total {
		w.End = total
	}
	if w.Duration() < minDur {
		return w, errs.Errorf(errs.KindExtraction, "window [%.2fs-%.2fs] is shorter than %s after clamping", w.Start.Seconds(), w.End.Seconds(), minDur)
	}
	return w, nil
}

func firstPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func firstPositiveDur(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
