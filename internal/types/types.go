package types

import "time"

// Transcript is the word-level speech-to-text output for one source.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type MediaInfo struct {
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
	HasAudio   bool          `json:"has_audio"`
	Format     string        `json:"format"`
	VideoCodec string        `json:"video_codec"`
}

// FrameDuration is the duration of a single frame at the probed rate.
func (m MediaInfo) FrameDuration() time.Duration {
	if m.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / m.FrameRate)
}

// FrameSet holds raw 8-bit grayscale frames sampled from a video.
type FrameSet struct {
	Width  int
	Height int
	Frames [][]byte
}

type HighlightWindow struct {
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	Score     float64       `json:"score"`
	Title     string        `json:"title,omitempty"`
	Rationale string        `json:"rationale,omitempty"`
}

func (w HighlightWindow) Duration() time.Duration { return w.End - w.Start }

// MaskRegion is a rectangle in source-frame pixel coordinates.
type MaskRegion struct {
	X      int `json:"x" validate:"gte=0"`
	Y      int `json:"y" validate:"gte=0"`
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// Crop is a pixel rectangle applied before scaling.
type Crop struct {
	X      int
	Y      int
	Width  int
	Height int
}

type Mode string

const (
	ModeCaption          Mode = "caption"
	ModeViralClip        Mode = "viral-clip"
	ModeWatermarkRemoval Mode = "watermark-removal"
	ModeCaptionRemoval   Mode = "caption-removal"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeCaption, ModeViralClip, ModeWatermarkRemoval, ModeCaptionRemoval:
		return true
	}
	return false
}

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StartParams carries the mode-specific parameters of a start request.
type StartParams struct {
	ClipCount   int           `json:"clip_count,omitempty" validate:"gte=0,lte=20"`
	MinDuration time.Duration `json:"min_duration,omitempty" validate:"gte=0"`
	MaxDuration time.Duration `json:"max_duration,omitempty" validate:"gte=0"`
	Mask        *MaskRegion   `json:"mask,omitempty" validate:"omitempty"`
}

type ArtifactKind string

const (
	ArtifactClip       ArtifactKind = "clip"
	ArtifactVideo      ArtifactKind = "video"
	ArtifactManifest   ArtifactKind = "manifest"
	ArtifactTranscript ArtifactKind = "transcript"
)

type Artifact struct {
	Name   string       `json:"name"`
	Kind   ArtifactKind `json:"kind"`
	Key    string       `json:"key"`
	Size   int64        `json:"size"`
	Window int          `json:"window,omitempty"`

	StartSec float64 `json:"start_sec,omitempty"`
	EndSec   float64 `json:"end_sec,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Title    string  `json:"title,omitempty"`
}

type Job struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Mode      Mode        `json:"mode"`
	Status    JobStatus   `json:"status"`
	Progress  int         `json:"progress"`
	Stage     string      `json:"stage,omitempty"`
	Message   string      `json:"message,omitempty"`
	Artifacts []Artifact  `json:"artifacts,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Notes     []string    `json:"notes,omitempty"`
	Params    StartParams `json:"params"`

	CancelRequested bool `json:"cancel_requested,omitempty"`

	// Attempt counts executions. LeaseOwner holds the running execution's
	// token until LeaseUntil; the worker renews it while the job runs.
	Attempt    int        `json:"attempt,omitempty"`
	LeaseOwner string     `json:"-"`
	LeaseUntil *time.Time `json:"lease_until,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int64      `json:"version"`
}

// Clone returns a deep copy safe to hand to readers.
func (j Job) Clone() Job {
	out := j
	if j.Artifacts != nil {
		out.Artifacts = append([]Artifact(nil), j.Artifacts...)
	}
	if j.Notes != nil {
		out.Notes = append([]string(nil), j.Notes...)
	}
	if j.Params.Mask != nil {
		m := *j.Params.Mask
		out.Params.Mask = &m
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.LeaseUntil != nil {
		t := *j.LeaseUntil
		out.LeaseUntil = &t
	}
	return out
}

// ProgressEvent is one committed progress update of a job. Version is the
// job record version the event was taken from.
type ProgressEvent struct {
	Seq      uint64    `json:"seq"`
	Version  int64     `json:"version"`
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Stage    string    `json:"stage"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Event is the progress event describing the committed record j.
func (j Job) Event() ProgressEvent {
	return ProgressEvent{
		JobID:    j.ID,
		Version:  j.Version,
		Status:   j.Status,
		Stage:    j.Stage,
		Progress: j.Progress,
		Message:  j.Message,
		Time:     j.UpdatedAt,
	}
}

type Manifest struct {
	JobID  string         `json:"job_id"`
	Source string         `json:"source"`
	Mode   Mode           `json:"mode"`
	Clips  []ManifestClip `json:"clips"`
	Notes  []string       `json:"notes,omitempty"`
}

type ManifestClip struct {
	ID        string  `json:"id"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	Score     float64 `json:"score"`
	Title     string  `json:"title"`
	Rationale string  `json:"rationale"`
	File      string  `json:"file"`
	Subtitles string  `json:"subtitles,omitempty"`
}
