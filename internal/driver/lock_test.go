package driver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRunLock_CreatesDirAndLockFile(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "nested", "out")

	lock, err := AcquireRunLock(outDir)
	if err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(outDir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, ".ptest.lock")); err != nil {
		t.Errorf("lock file not created: %v", err)
	}
}

func TestRunLock_ReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestRunLock_ReleaseNilIsSafe(t *testing.T) {
	var lock *RunLock
	if err := lock.Release(); err != nil {
		t.Errorf("Release() on nil *RunLock error = %v, want nil", err)
	}
}

func TestAcquireRunLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	second, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("second AcquireRunLock() error = %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}
