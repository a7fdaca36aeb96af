package pyscan

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultTestPatterns match the canonical test-framework's own file
// discovery convention.
var DefaultTestPatterns = []string{"test_*.py", "*_test.py"}

// DiscoverFiles walks dir recursively, returning every file matching
// patterns.
func DiscoverFiles(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultTestPatterns
	}

	var files []string
	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, base)
			if err != nil {
				return err
			}
			if matched {
				files = append(files, path)
				break
			}
		}
		return nil
	}

	if err := filepath.Walk(dir, walkFn); err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// ExpandPaths resolves CLI positional arguments (files or directories)
// into a flat, deduplicated list of source files.
func ExpandPaths(paths []string, patterns []string) ([]string, error) {
	var result []string
	seen := make(map[string]bool)

	add := func(f string) {
		if !seen[f] {
			result = append(result, f)
			seen[f] = true
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if info.IsDir() {
			files, err := DiscoverFiles(p, patterns)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
			continue
		}
		add(p)
	}
	return result, nil
}

// IsTestFile reports whether filename matches one of patterns (or the
// default patterns, if empty).
func IsTestFile(filename string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = DefaultTestPatterns
	}
	base := filepath.Base(filename)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// relativeTo returns path relative to root, falling back to path itself
// if it cannot be made relative (e.g. different volumes on Windows).
func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
