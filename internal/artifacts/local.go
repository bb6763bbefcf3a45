// Package artifacts stores job outputs under "<job id>/<name>" keys.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

// Key joins a job id and an artifact name into a storage key.
func Key(jobID, name string) (string, error) {
	if !validSegment(jobID) || !validSegment(name) {
		return "", errs.Errorf(errs.KindValidation, "invalid artifact key %q/%q", jobID, name)
	}
	return jobID + "/" + name, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func splitKey(key string) (string, string, error) {
	jobID, name, ok := strings.Cut(key, "/")
	if !ok || !validSegment(jobID) || !validSegment(name) {
		return "", "", errs.Errorf(errs.KindValidation, "invalid artifact key %q", key)
	}
	return jobID, name, nil
}

// Local keeps artifacts in a directory tree on disk.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Local{root: root}, nil
}

// Path is the on-disk location of key.
func (l *Local) Path(key string) (string, error) {
	jobID, name, err := splitKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, jobID, name), nil
}

// Put moves the file when it is on the same filesystem and copies it otherwise.
func (l *Local) Put(_ context.Context, jobID, name, localPath string) (types.Artifact, error) {
	key, err := Key(jobID, name)
	if err != nil {
		return types.Artifact{}, err
	}
	dst := filepath.Join(l.root, jobID, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return types.Artifact{}, fmt.Errorf("create job artifact dir: %w", err)
	}
	if err := os.Rename(localPath, dst); err != nil {
		if err := copyFile(localPath, dst); err != nil {
			return types.Artifact{}, err
		}
	}
	st, err := os.Stat(dst)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	return types.Artifact{Name: name, Key: key, Size: st.Size()}, nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Errorf(errs.KindNotFound, "artifact %s not found", key)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

func (l *Local) Discard(_ context.Context, jobID string) error {
	if !validSegment(jobID) {
		return errs.Errorf(errs.KindValidation, "invalid job id %q", jobID)
	}
	if err := os.RemoveAll(filepath.Join(l.root, jobID)); err != nil {
		return fmt.Errorf("discard artifacts of %s: %w", jobID, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", path.Base(src), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, dst)
}

var _ ports.ArtifactStore = (*Local)(nil)
