//go:build integration

package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/forPelevin/clipforge/internal/errs"
)

func TestS3RoundTrip(t *testing.T) {
	endpoint := os.Getenv("CLIPFORGE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("CLIPFORGE_TEST_S3_ENDPOINT is not set")
	}
	ctx := context.Background()
	s, err := NewS3(ctx, S3Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("CLIPFORGE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("CLIPFORGE_TEST_S3_SECRET_KEY"),
		Bucket:    "clipforge-test",
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	src := filepath.Join(t.TempDir(), "clip-001.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	jobID := uuid.NewString()
	a, err := s.Put(ctx, jobID, "clip-001.mp4", src)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if a.Key != jobID+"/clip-001.mp4" || a.Size != int64(len("video bytes")) {
		t.Fatalf("unexpected artifact %+v", a)
	}

	rc, err := s.Open(ctx, a.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "video bytes" {
		t.Fatalf("unexpected content %q", b)
	}

	u, err := s.URL(ctx, a.Key)
	if err != nil || !strings.Contains(u, jobID) {
		t.Fatalf("unexpected url %q err=%v", u, err)
	}

	if err := s.Discard(ctx, jobID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := s.Open(ctx, a.Key); !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected not found after discard, got %v", err)
	}
	if _, err := s.Open(ctx, "../escape"); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
