package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

// Encoding profile of every re-encoded output.
const (
	videoCodec   = "libx264"
	videoPreset  = "veryfast"
	videoCRF     = "20"
	videoMaxRate = "6M"
	videoBufSize = "12M"
	audioCodec   = "aac"
	audioBitrate = "192k"
	audioRate    = "48000"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) SplitAudio(ctx context.Context, wav string, chunk time.Duration, outDir string) ([]string, error) {
	if chunk <= 0 {
		return []string{wav}, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	pattern := filepath.Join(outDir, "chunk-%04d.wav")
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", wav,
		"-f", "segment",
		"-segment_time", fmtSeconds(chunk),
		"-reset_timestamps", "1",
		"-c", "copy",
		pattern,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split audio: %w\n%s", err, string(b))
	}
	paths, err := filepath.Glob(filepath.Join(outDir, "chunk-*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (a *Adapter) ExtractClip(ctx context.Context, in string, spec ports.ClipSpec, out string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, extractArgs(in, spec, out)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract clip: %w\n%s", err, tail(b))
	}
	return nil
}

func extractArgs(in string, spec ports.ClipSpec, out string) []string {
	filters := []string{
		fmt.Sprintf("crop=%d:%d:%d:%d", spec.Crop.Width, spec.Crop.Height, spec.Crop.X, spec.Crop.Y),
		fmt.Sprintf("scale=%d:%d:flags=lanczos", spec.OutWidth, spec.OutHeight),
		"setsar=1",
	}
	if spec.FrameRate > 0 {
		// Constant frame rate keeps the audio and video timelines locked.
		filters = append(filters, "fps="+strconv.FormatFloat(spec.FrameRate, 'f', 3, 64))
	}
	return []string{
		"-y",
		"-ss", fmtSeconds(spec.Start),
		"-i", in,
		"-t", fmtSeconds(spec.End - spec.Start),
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", strings.Join(filters, ","),
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-maxrate", videoMaxRate,
		"-bufsize", videoBufSize,
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-ar", audioRate,
		"-af", "aresample=async=1",
		"-movflags", "+faststart",
		out,
	}
}

func (a *Adapter) BurnSubtitles(ctx context.Context, in, ass, out string) error {
	args := []string{
		"-y",
		"-i", in,
		"-vf", "subtitles=" + escapeFilterPath(ass),
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-maxrate", videoMaxRate,
		"-bufsize", videoBufSize,
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		out,
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg burn subtitles: %w\n%s", err, tail(b))
	}
	return nil
}

func (a *Adapter) RemoveRegion(ctx context.Context, in string, region types.MaskRegion, out string) error {
	args := []string{
		"-y",
		"-i", in,
		"-vf", delogoFilter(region),
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		out,
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg remove region: %w\n%s", err, tail(b))
	}
	return nil
}

func delogoFilter(r types.MaskRegion) string {
	return fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d", r.X, r.Y, r.Width, r.Height)
}

func (a *Adapter) SampleFrames(
	ctx context.Context,
	in string,
	start, end time.Duration,
	width, maxFrames int,
	info types.MediaInfo,
) (types.FrameSet, error) {
	if info.Width <= 0 || info.Height <= 0 || width <= 0 || maxFrames <= 0 {
		return types.FrameSet{}, fmt.Errorf("sample frames: invalid geometry")
	}
	height := even(width * info.Height / info.Width)
	if height < 2 {
		height = 2
	}
	span := end - start
	if span <= 0 {
		return types.FrameSet{}, fmt.Errorf("sample frames: empty interval")
	}
	rate := 2.0
	if r := float64(maxFrames) / span.Seconds(); r < rate {
		rate = r
	}

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-v", "error",
		"-ss", fmtSeconds(start),
		"-i", in,
		"-t", fmtSeconds(span),
		"-an",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d,format=gray", strconv.FormatFloat(rate, 'f', 4, 64), width, height),
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "rawvideo",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.FrameSet{}, fmt.Errorf("ffmpeg sample frames: %w\n%s", err, stderr.String())
	}
	return splitFrames(stdout.Bytes(), width, height), nil
}

func splitFrames(raw []byte, width, height int) types.FrameSet {
	fs := types.FrameSet{Width: width, Height: height}
	size := width * height
	if size <= 0 {
		return fs
	}
	for off := 0; off+size <= len(raw); off += size {
		fs.Frames = append(fs.Frames, raw[off:off+size])
	}
	return fs
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

func even(n int) int { return n &^ 1 }

// tail keeps the end of noisy encoder logs, where the failure reason is.
func tail(b []byte) string {
	const max = 2000
	if len(b) <= max {
		return string(b)
	}
	return "..." + string(b[len(b)-max:])
}
