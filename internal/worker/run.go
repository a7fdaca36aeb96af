package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hughhan1/rtest/internal/expand"
	"github.com/hughhan1/rtest/internal/pyscan"
)

// deprecationsEnvVar is the side channel the driver pre-populates per
// worker so a deprecation notice for the legacy alias module name is
// printed at most once per (file, legacy-name) pair across the whole run,
// even though each worker only sees its own bucket of files.
const deprecationsEnvVar = "PTEST_SEEN_DEPRECATIONS"

// Batch runs every ExecutableItem discovered from files, writing one
// Result per item to out. It returns the worker's own exit code: 0 iff no
// item in the batch outcome as failed or error.
func Batch(engine Engine, root string, files []string, out *ResultWriter, stderr *strings.Builder) (int, error) {
	seen := loadSeenDeprecations()
	sawFailureOrError := false

	for _, file := range files {
		relPath, err := filepath.Rel(root, file)
		if err != nil {
			relPath = file
		}
		relPath = filepath.ToSlash(relPath)

		src, err := os.ReadFile(file)
		if err != nil {
			sawFailureOrError = true
			if writeErr := out.Write(Result{
				NodeID:    relPath,
				Outcome:   Errored,
				ErrorType: "IOError",
				Error:     &ResultError{Type: "IOError", Message: err.Error()},
			}); writeErr != nil {
				return 1, writeErr
			}
			continue
		}

		scanned, err := pyscan.ScanFile(relPath, string(src))
		if err != nil {
			sawFailureOrError = true
			if writeErr := emitFileError(out, relPath, err); writeErr != nil {
				return 1, writeErr
			}
			continue
		}

		moduleName := moduleNameFor(relPath)

		var module Module
		var loadErr error
		needsModule := false
		for _, ti := range scanned.Items {
			if _, hasSkip := ti.SkipReason(); !hasSkip {
				needsModule = true
				break
			}
		}
		if needsModule {
			module, loadErr = engine.Load(moduleName, scanned.RuntimeSource)
		}

		for _, ti := range scanned.Items {
			if ti.UsesLegacyAlias {
				emitDeprecationOnce(seen, stderr, relPath)
			}

			items, err := expand.Expand(ti)
			if err != nil {
				sawFailureOrError = true
				if writeErr := out.Write(Result{
					NodeID:    string(ti.NodeIDStem),
					Outcome:   Errored,
					ErrorType: "CollectionError",
					Error:     &ResultError{Type: "CollectionError", Message: err.Error()},
				}); writeErr != nil {
					return 1, writeErr
				}
				continue
			}

			for _, item := range items {
				res, failedOrErrored := runItem(module, loadErr, item)
				sawFailureOrError = sawFailureOrError || failedOrErrored
				if writeErr := out.Write(res); writeErr != nil {
					return 1, writeErr
				}
			}
		}
	}

	if sawFailureOrError {
		return 1, nil
	}
	return 0, nil
}

func runItem(module Module, loadErr error, item pyscan.ExecutableItem) (Result, bool) {
	if item.HasSkip {
		return Result{
			NodeID:  string(item.NodeID),
			Outcome: Skipped,
			Error:   &ResultError{Type: "Skipped", Reason: item.SkipReason},
		}, false
	}

	if loadErr != nil {
		return Result{
			NodeID:    string(item.NodeID),
			Outcome:   Errored,
			ErrorType: "ImportError",
			Error:     &ResultError{Type: "ImportError", Message: loadErr.Error()},
		}, true
	}

	exec := module.Call(item.ClassName, item.FunctionName, item.ParamBindings)

	res := Result{
		NodeID:     string(item.NodeID),
		Outcome:    exec.Outcome,
		DurationMs: exec.Duration.Milliseconds(),
		Stdout:     exec.Stdout,
		Stderr:     exec.Stderr,
	}
	if exec.Outcome == Failed || exec.Outcome == Errored {
		res.ErrorType = exec.ErrorType
		res.Error = &ResultError{
			Type:      exec.ErrorType,
			Message:   exec.Message,
			Traceback: exec.Traceback,
		}
	}
	failedOrErrored := exec.Outcome == Failed || exec.Outcome == Errored
	return res, failedOrErrored
}

// emitFileError fabricates an error Result for the offending file's own
// stem, since a scan failure means no ExecutableItems were ever produced
// to attribute the error to individually.
func emitFileError(out *ResultWriter, relPath string, err error) error {
	return out.Write(Result{
		NodeID:    relPath,
		Outcome:   Errored,
		ErrorType: "CollectionError",
		Error:     &ResultError{Type: "CollectionError", Message: err.Error()},
	})
}

// moduleNameFor derives the deterministic module name the spec requires:
// directory separators replaced by ".", extension stripped.
func moduleNameFor(relPath string) string {
	trimmed := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return strings.ReplaceAll(filepath.ToSlash(trimmed), "/", ".")
}

// loadSeenDeprecations parses the comma-separated file list the driver
// pre-seeds into PTEST_SEEN_DEPRECATIONS, one entry already considered
// "announced" by another worker in this run.
func loadSeenDeprecations() map[string]bool {
	seen := make(map[string]bool)
	raw := os.Getenv(deprecationsEnvVar)
	if raw == "" {
		return seen
	}
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			seen[f] = true
		}
	}
	return seen
}

func emitDeprecationOnce(seen map[string]bool, stderr *strings.Builder, relPath string) {
	if seen[relPath] {
		return
	}
	seen[relPath] = true
	if stderr != nil {
		stderr.WriteString(fmt.Sprintf(
			"%s: DeprecationWarning: importing the test-framework module under its legacy alias name is deprecated\n",
			relPath,
		))
	}
}
