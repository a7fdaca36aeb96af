package driver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards an output directory so two driver invocations never
// interleave writes into the same result directory.
type RunLock struct {
	file *flock.Flock
}

// AcquireRunLock creates outDir if needed and takes an exclusive lock on
// a file inside it. Release unlocks it.
func AcquireRunLock(outDir string) (*RunLock, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(outDir, ".ptest.lock"))
	if err := fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return &RunLock{file: fileLock}, nil
}

// Release unlocks the run lock.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
