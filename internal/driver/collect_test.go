package driver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

func TestCollect_ExpandsAndTracksLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "test_native.py", "import rtest\n\n\ndef test_a():\n    assert.true_(True)\n")
	writeTestFile(t, dir, "test_legacy.py", "import pytest\n\n\n@pytest.mark.xdist_group(\"g\")\ndef test_b():\n    assert.true_(True)\n")

	items, legacyFiles, err := Collect(Options{Root: dir, Paths: []string{dir}})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Collect() returned %d items, want 2", len(items))
	}
	if len(legacyFiles) != 1 || legacyFiles[0] != "test_legacy.py" {
		t.Errorf("legacyFiles = %v, want [test_legacy.py]", legacyFiles)
	}
}

func TestCollect_ParametrizeExpandsToMultipleItems(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "test_p.py", "import rtest\n\n\n@rtest.mark.parametrize(\"v\", [1, 2, 3])\ndef test_v(v):\n    assert.true_(v > 0)\n")

	items, _, err := Collect(Options{Root: dir, Paths: []string{dir}})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Collect() returned %d items, want 3", len(items))
	}
}

func TestCollect_NoMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "helpers.py", "def noop():\n    pass\n")

	items, legacyFiles, err := Collect(Options{Root: dir, Paths: []string{dir}})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 0 || len(legacyFiles) != 0 {
		t.Errorf("Collect() = (%v, %v), want both empty", items, legacyFiles)
	}
}
