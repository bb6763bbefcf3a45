package ports

import (
	"context"
	"io"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// ClipSpec describes one extraction: a source interval, a crop applied
// before scaling and the output frame size.
type ClipSpec struct {
	Start     time.Duration
	End       time.Duration
	Crop      types.Crop
	OutWidth  int
	OutHeight int
	FrameRate float64
}

type VideoTool interface {
	Probe(ctx context.Context, in string) (types.MediaInfo, error)
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	// SplitAudio cuts a wav file into chunks of at most chunk length and
	// returns their paths in timeline order.
	SplitAudio(ctx context.Context, wav string, chunk time.Duration, outDir string) ([]string, error)
	SampleFrames(ctx context.Context, in string, start, end time.Duration, width, maxFrames int, info types.MediaInfo) (types.FrameSet, error)
	ExtractClip(ctx context.Context, in string, spec ClipSpec, out string) error
	BurnSubtitles(ctx context.Context, in, ass, out string) error
	RemoveRegion(ctx context.Context, in string, region types.MaskRegion, out string) error
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// LLMRequest is one structured-output completion request.
type LLMRequest struct {
	Prompt     string
	SchemaName string
	Schema     map[string]any
}

type LLM interface {
	Complete(ctx context.Context, req LLMRequest) (string, error)
}

type HighlightAnalyzer interface {
	Analyze(ctx context.Context, tr types.Transcript, req AnalyzeRequest) ([]types.HighlightWindow, error)
}

type AnalyzeRequest struct {
	Count       int
	MinDuration time.Duration
	MaxDuration time.Duration
}

// JobStore is a job registry with atomic per-record updates.
type JobStore interface {
	Create(ctx context.Context, job types.Job) error
	Get(ctx context.Context, id string) (types.Job, error)
	List(ctx context.Context, limit int) ([]types.Job, error)
	// Update applies fn to the current record and commits the result only if
	// the record was not changed concurrently. fn may be called more than once.
	Update(ctx context.Context, id string, fn func(*types.Job) error) (types.Job, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, jobID, name, localPath string) (types.Artifact, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Discard(ctx context.Context, jobID string) error
}

type ProgressSink interface {
	Publish(ctx context.Context, ev types.ProgressEvent) error
}

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}
