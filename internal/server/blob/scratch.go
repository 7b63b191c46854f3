package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const scratchSuffix = ".upload"

// Scratch is an exclusively-owned in-progress upload artifact. The owner
// streams bytes into it and hands it to Store.Publish, or calls Discard on
// failure.
type Scratch struct {
	file *os.File
	path string
}

func stageIn(dir string) (*Scratch, error) {
	path := filepath.Join(dir, uuid.New().String()+scratchSuffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create scratch %s: %w", path, err)
	}
	return &Scratch{file: f, path: path}, nil
}

func (s *Scratch) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Path returns the scratch artifact location. Useful for stores that need to
// re-read the staged bytes during publish.
func (s *Scratch) Path() string {
	return s.path
}

func (s *Scratch) close() error {
	err := s.file.Close()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Discard closes and removes the scratch artifact. Safe to call after the
// artifact has already been moved or removed.
func (s *Scratch) Discard() error {
	_ = s.close()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// sweepScratch removes scratch artifacts in dir whose modification time is
// older than cutoff. In-flight uploads keep their artifacts younger than any
// reasonable cutoff, so only abandoned ones are swept.
func sweepScratch(dir string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read scratch dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != scratchSuffix {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
