package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/smartctf/filevault/internal/common"
)

// scratchDirName keeps half-written files out of the published namespace so
// they can never be mistaken for valid content.
const scratchDirName = ".scratch"

// FSStore stores blobs in a filesystem directory, named by their SHA-256
// digest. Scratch artifacts live under a hidden subdirectory on the same
// filesystem so that publish is a single atomic rename.
type FSStore struct {
	root    string
	scratch string
}

func NewFSStore(root string) (*FSStore, error) {
	scratch := filepath.Join(root, scratchDirName)
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", scratch, err)
	}
	return &FSStore{root: root, scratch: scratch}, nil
}

func (s *FSStore) StageNew() (*Scratch, error) {
	return stageIn(s.scratch)
}

func (s *FSStore) CanonicalPath(sha256Hex string) string {
	return filepath.Join(s.root, sha256Hex)
}

func (s *FSStore) Publish(ctx context.Context, scratch *Scratch, sha256Hex string) (string, error) {
	if err := scratch.close(); err != nil {
		return "", fmt.Errorf("close scratch: %w", err)
	}

	target := s.CanonicalPath(sha256Hex)

	if _, err := os.Stat(target); err == nil {
		// identical bytes are already published; ours are redundant
		if err := scratch.Discard(); err != nil {
			return "", fmt.Errorf("discard scratch: %w", err)
		}
		return target, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	// Concurrent publishers of the same hash may both reach the rename; the
	// artifacts hold identical bytes and rename(2) replaces atomically, so
	// the last one simply wins.
	if err := os.Rename(scratch.path, target); err != nil {
		return "", fmt.Errorf("publish %s: %w", sha256Hex, err)
	}
	return target, nil
}

func (s *FSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", path, common.ErrNotFound)
		}
		return nil, fmt.Errorf("open blob %s: %w", path, err)
	}
	return f, nil
}

func (s *FSStore) SweepScratch(olderThan time.Duration) (int, error) {
	return sweepScratch(s.scratch, olderThan)
}
