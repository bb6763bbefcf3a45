package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/domain/transcript"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/types"
)

// transcribe extracts mono 16 kHz audio, splits it into fixed-length chunks
// and transcribes them one at a time, so memory is bounded by the transcript.
// Progress moves from lo to hi.
func (u Usecase) transcribe(ctx context.Context, in Input, info types.MediaInfo, rep Reporter, lo, hi int, log logrus.FieldLogger) (types.Transcript, error) {
	if !info.HasAudio {
		return types.Transcript{}, errs.Errorf(errs.KindUnsupportedMedia, "source has no audio stream")
	}
	if err := rep.Report(ctx, "transcribe", lo, "extracting audio"); err != nil {
		return types.Transcript{}, err
	}

	dir := filepath.Join(in.WorkDir, "audio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Transcript{}, errs.E(errs.KindInternal, "create audio dir", err)
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, in.Source, wav); err != nil {
		return types.Transcript{}, errs.E(errs.KindTranscription, "extract audio", err)
	}
	chunks, err := u.d.Video.SplitAudio(ctx, wav, u.cfg.ChunkLength, dir)
	if err != nil {
		return types.Transcript{}, errs.E(errs.KindTranscription, "split audio", err)
	}
	_ = os.Remove(wav)

	var all types.Transcript
	for i, chunk := range chunks {
		msg := fmt.Sprintf("transcribing chunk %d/%d", i+1, len(chunks))
		if err := rep.Report(ctx, "transcribe", between(lo, hi, i, len(chunks)), msg); err != nil {
			return types.Transcript{}, err
		}
		tr, err := u.d.ASR.Transcribe(ctx, chunk, dir)
		if err != nil {
			return types.Transcript{}, errs.E(errs.KindTranscription, msg, err)
		}
		off := time.Duration(i) * u.cfg.ChunkLength
		all.Segments = append(all.Segments, transcript.Shift(tr, off).Segments...)
		_ = os.Remove(chunk)
	}
	all = transcript.Normalize(all)
	log.WithFields(logrus.Fields{"chunks": len(chunks), "segments": len(all.Segments)}).Info("transcription finished")

	if err := rep.Report(ctx, "transcribe", hi, "transcription finished"); err != nil {
		return types.Transcript{}, err
	}
	return all, nil
}

// writeTranscript persists the text rendering and the word records.
func writeTranscript(dir string, tr types.Transcript) ([]OutputFile, error) {
	txt := filepath.Join(dir, "transcript.txt")
	f, err := os.Create(txt)
	if err != nil {
		return nil, errs.E(errs.KindInternal, "create transcript", err)
	}
	if err := transcript.WriteText(f, tr); err != nil {
		f.Close()
		return nil, errs.E(errs.KindInternal, "write transcript", err)
	}
	if err := f.Close(); err != nil {
		return nil, errs.E(errs.KindInternal, "close transcript", err)
	}

	b, err := json.Marshal(tr)
	if err != nil {
		return nil, errs.E(errs.KindInternal, "marshal transcript", err)
	}
	js := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(js, b, 0o644); err != nil {
		return nil, errs.E(errs.KindInternal, "write transcript", err)
	}
	return []OutputFile{
		{Path: txt, Artifact: types.Artifact{Name: "transcript.txt", Kind: types.ArtifactTranscript}},
		{Path: js, Artifact: types.Artifact{Name: "transcript.json", Kind: types.ArtifactTranscript}},
	}, nil
}
