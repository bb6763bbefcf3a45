package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// ffprobe messages that mean the container was recognised but its data is damaged.
var corruptMarkers = []string{
	"invalid data found when processing input",
	"moov atom not found",
	"end of file",
	"invalid nal unit",
	"truncated",
}

func (a *Adapter) Probe(ctx context.Context, in string) (types.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		in,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return types.MediaInfo{}, ctx.Err()
		}
		return types.MediaInfo{}, classifyProbeFailure(err, stderr.String())
	}
	return parseProbe(b)
}

func classifyProbeFailure(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	for _, m := range corruptMarkers {
		if strings.Contains(lower, m) {
			return errs.E(errs.KindCorruptMedia, "ffprobe", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr)))
		}
	}
	return errs.E(errs.KindUnsupportedMedia, "ffprobe", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr)))
}

func parseProbe(b []byte) (types.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaInfo{}, errs.E(errs.KindCorruptMedia, "parse ffprobe output", err)
	}

	info := types.MediaInfo{Format: out.Format.FormatName}
	videoFound := false
	var streamDur float64
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseRate(s.AvgFrameRate)
			if info.FrameRate <= 0 {
				info.FrameRate = parseRate(s.RFrameRate)
			}
			streamDur, _ = strconv.ParseFloat(s.Duration, 64)
		case "audio":
			info.HasAudio = true
		}
	}
	if !videoFound {
		return types.MediaInfo{}, errs.E(errs.KindUnsupportedMedia, "probe", errors.New("no video stream"))
	}
	if info.Width <= 0 || info.Height <= 0 {
		return types.MediaInfo{}, errs.E(errs.KindCorruptMedia, "probe", fmt.Errorf("invalid dimensions %dx%d", info.Width, info.Height))
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || sec <= 0 {
		sec = streamDur
	}
	if sec <= 0 {
		return types.MediaInfo{}, errs.E(errs.KindCorruptMedia, "probe", fmt.Errorf("unreadable duration %q", out.Format.Duration))
	}
	info.Duration = time.Duration(sec * float64(time.Second))
	return info, nil
}

// parseRate parses ffprobe rationals like "30000/1001".
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
