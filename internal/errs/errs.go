// Package errs is the error taxonomy shared by the pipeline stages and the
// job orchestrator.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnsupportedMedia Kind = "unsupported_media"
	KindCorruptMedia     Kind = "corrupt_media"
	KindTranscription    Kind = "transcription"
	KindAnalysis         Kind = "analysis"
	KindExtraction       Kind = "extraction"
	KindRender           Kind = "render"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, errs.Cancelled) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Sentinels for errors.Is checks.
var (
	UnsupportedMedia = &Error{Kind: KindUnsupportedMedia}
	CorruptMedia     = &Error{Kind: KindCorruptMedia}
	Transcription    = &Error{Kind: KindTranscription}
	Analysis         = &Error{Kind: KindAnalysis}
	Extraction       = &Error{Kind: KindExtraction}
	Render           = &Error{Kind: KindRender}
	Validation       = &Error{Kind: KindValidation}
	NotFound         = &Error{Kind: KindNotFound}
	Cancelled        = &Error{Kind: KindCancelled}
)

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Wrap classifies err unless it already carries a kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return E(kind, op, err)
}
