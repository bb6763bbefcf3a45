package artifacts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/clipforge/internal/errs"
)

func TestLocalPutOpenDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewLocal(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	a, err := store.Put(ctx, "job-1", "clip-001.mp4", src)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if a.Key != "job-1/clip-001.mp4" || a.Size != int64(len("video bytes")) {
		t.Fatalf("unexpected artifact: %+v", a)
	}

	rc, err := store.Open(ctx, a.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "video bytes" {
		t.Fatalf("unexpected content %q", b)
	}

	if err := store.Discard(ctx, "job-1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := store.Open(ctx, a.Key); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not_found after discard, got %v", err)
	}
}

func TestKeyRejectsTraversal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		jobID, name string
		ok          bool
	}{
		{"job", "clip-001.mp4", true},
		{"job", "../secret", false},
		{"..", "x", false},
		{"job", "a/b", false},
		{"", "x", false},
	}
	for _, tt := range tests {
		_, err := Key(tt.jobID, tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("Key(%q, %q) err=%v, want ok=%v", tt.jobID, tt.name, err, tt.ok)
		}
	}

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if _, err := store.Open(context.Background(), "../../etc/passwd"); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	if got := contentType("clip-001.mp4"); got != "video/mp4" {
		t.Fatalf("got %q", got)
	}
	if got := contentType("blob"); got != "application/octet-stream" {
		t.Fatalf("got %q", got)
	}
}
