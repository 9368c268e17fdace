// Package lock enforces the single-engine-instance assumption spec §9
// makes explicit: "a single engine instance owns the download
// directory." Grounded on surge-downloader-surge's use of
// github.com/gofrs/flock to guard its own resume state; no teacher
// analogue exists since the teacher is a single-user desktop app with no
// concurrent-instance concern.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock holds an exclusive advisory lock on a download directory's
// ".parts/.lock" file for the engine's lifetime.
type DirLock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive, non-blocking lock on downloadDir. It
// returns an error if another engine process already holds it.
func Acquire(downloadDir string) (*DirLock, error) {
	partsDir := filepath.Join(downloadDir, ".parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock %s: %w", downloadDir, err)
	}
	fl := flock.New(filepath.Join(partsDir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", downloadDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: already owned by another engine instance", downloadDir)
	}
	return &DirLock{fl: fl}, nil
}

// Release gives up the lock.
func (l *DirLock) Release() error {
	return l.fl.Unlock()
}
