package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/clipforge/internal/types"
)

type Adapter struct {
	bin     string
	model   string
	threads int
}

func New(binPath, modelPath string, threads int) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, threads: threads}
}

// Transcribe runs whisper.cpp over one wav file and returns segments with
// word timings derived from token offsets.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	outPrefix := filepath.Join(cacheDir, "whisper-"+base)
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ojf",
		"-of", outPrefix,
		"-np",
	}
	if a.threads > 0 {
		args = append(args, "-t", fmt.Sprint(a.threads))
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)
	jb, err := os.ReadFile(jsonPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	return parseFullJSON(jb)
}

type fullOutput struct {
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// offsets are milliseconds.
type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

func parseFullJSON(b []byte) (types.Transcript, error) {
	var out fullOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}

	var tr types.Transcript
	for _, item := range out.Transcription {
		seg := types.Segment{
			Start: ms(item.Offsets.From),
			End:   ms(item.Offsets.To),
			Text:  strings.TrimSpace(item.Text),
		}
		var cur *types.Word
		for _, tok := range item.Tokens {
			if isSpecialToken(tok.Text) {
				continue
			}
			text := tok.Text
			if strings.TrimSpace(text) == "" {
				continue
			}
			startsWord := strings.HasPrefix(text, " ") || cur == nil
			if startsWord {
				seg.Words = append(seg.Words, types.Word{
					Start: ms(tok.Offsets.From),
					End:   ms(tok.Offsets.To),
					Word:  strings.TrimSpace(text),
				})
				cur = &seg.Words[len(seg.Words)-1]
				continue
			}
			cur.Word += strings.TrimSpace(text)
			if e := ms(tok.Offsets.To); e > cur.End {
				cur.End = e
			}
		}
		if seg.Text == "" && len(seg.Words) == 0 {
			continue
		}
		tr.Segments = append(tr.Segments, seg)
	}
	return tr, nil
}

func isSpecialToken(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[_") || (strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>"))
}

func ms(v int64) float64 { return float64(v) / 1000 }
