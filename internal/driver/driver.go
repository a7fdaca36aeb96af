// Package driver spawns worker sub-processes, consumes their JSONL result
// streams concurrently, and aggregates a final summary and exit code.
package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hughhan1/rtest/internal/expand"
	"github.com/hughhan1/rtest/internal/pyscan"
	"github.com/hughhan1/rtest/internal/schedule"
	"github.com/hughhan1/rtest/internal/worker"
)

// DistMode selects the Group Scheduler's affinity behavior.
type DistMode string

const (
	DistLoad      DistMode = "load"
	DistLoadGroup DistMode = "loadgroup"
)

// ParseDistMode validates the --dist flag value.
func ParseDistMode(s string) (DistMode, error) {
	switch DistMode(s) {
	case DistLoad, DistLoadGroup:
		return DistMode(s), nil
	default:
		return "", fmt.Errorf("unknown distribution mode %q (want %q or %q)", s, DistLoad, DistLoadGroup)
	}
}

// Options configures one driver invocation.
type Options struct {
	Root         string
	Paths        []string
	NumWorkers   int
	Dist         DistMode
	WorkerBinary string
	GracePeriod  time.Duration
	Logger       *zap.Logger
}

// Collect runs discovery and expansion for opts.Paths, returning every
// ExecutableItem plus the relative paths of files that reached a marker
// through the legacy alias module name (for deprecation-notice seeding).
func Collect(opts Options) ([]pyscan.ExecutableItem, []string, error) {
	files, err := pyscan.ExpandPaths(opts.Paths, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("expanding paths: %w", err)
	}

	var items []pyscan.ExecutableItem
	var legacyFiles []string
	for _, f := range files {
		relPath := relativeTo(opts.Root, f)
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", f, err)
		}
		result, err := pyscan.ScanFile(relPath, string(src))
		if err != nil {
			// Collection errors degrade gracefully: surfaced as a single
			// synthetic item so aggregation can still report it, but
			// other files keep collecting.
			items = append(items, pyscan.ExecutableItem{
				NodeID:     pyscan.NodeID(relPath),
				SourceFile: relPath,
				HasSkip:    false,
			})
			continue
		}

		fileIsLegacy := false
		for _, ti := range result.Items {
			if ti.UsesLegacyAlias {
				fileIsLegacy = true
			}
			expanded, err := expand.Expand(ti)
			if err != nil {
				items = append(items, pyscan.ExecutableItem{
					NodeID:     ti.NodeIDStem,
					SourceFile: relPath,
				})
				continue
			}
			items = append(items, expanded...)
		}
		if fileIsLegacy {
			legacyFiles = append(legacyFiles, relPath)
		}
	}
	return items, legacyFiles, nil
}

// bucket is one non-empty worker assignment, numbered for its output
// file and result-watch index.
type bucket struct {
	index int
	items []pyscan.ExecutableItem
	files []string
}

// partitionBuckets runs the Group Scheduler and collapses it into the
// non-empty buckets the driver actually spawns a worker for.
func partitionBuckets(items []pyscan.ExecutableItem, numWorkers int, mode DistMode) []bucket {
	assignment := schedule.Assign(normalizeForMode(items, mode), numWorkers)

	var buckets []bucket
	for i, assigned := range assignment {
		if len(assigned) == 0 {
			continue
		}
		buckets = append(buckets, bucket{index: i, items: assigned, files: fileListFor(assigned)})
	}
	return buckets
}

// normalizeForMode clears the xdist_group field in load mode so every
// item becomes its own singleton group, matching the spec's description
// of `load` as `loadgroup` with the affinity constraint made trivial.
func normalizeForMode(items []pyscan.ExecutableItem, mode DistMode) []pyscan.ExecutableItem {
	if mode == DistLoadGroup {
		return items
	}
	out := make([]pyscan.ExecutableItem, len(items))
	for i, it := range items {
		it.HasGroup = false
		it.XdistGroup = ""
		out[i] = it
	}
	return out
}

// seedDeprecationEnv decides, for every bucket, which legacyFiles it
// should treat as already announced. A file that lands in more than one
// bucket (its items split across groups) is only left unseeded for the
// first bucket that contains it, so the notice is still printed exactly
// once across the whole run despite workers never talking to each other.
func seedDeprecationEnv(buckets []bucket, legacyFiles []string) []string {
	seeded := make([]string, len(buckets))
	for _, lf := range legacyFiles {
		owner := -1
		for i, b := range buckets {
			if containsFile(b.files, lf) {
				owner = i
				break
			}
		}
		if owner == -1 {
			continue
		}
		for i, b := range buckets {
			if i == owner {
				continue
			}
			if containsFile(b.files, lf) {
				seeded[i] = appendCSV(seeded[i], lf)
			}
		}
	}
	return seeded
}

func containsFile(files []string, target string) bool {
	for _, f := range files {
		if f == target {
			return true
		}
	}
	return false
}

func appendCSV(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "," + next
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

func fileListFor(items []pyscan.ExecutableItem) []string {
	seen := make(map[string]bool)
	var files []string
	for _, it := range items {
		if !seen[it.SourceFile] {
			seen[it.SourceFile] = true
			files = append(files, it.SourceFile)
		}
	}
	return files
}

// Run spawns one worker per non-empty bucket, consumes their JSONL
// streams concurrently, and returns the aggregated summary. onResult, if
// non-nil, is called for every result as it arrives (verbose reporting).
func Run(ctx context.Context, opts Options, items []pyscan.ExecutableItem, legacyFiles []string, outDir string, onResult func(worker.Result)) (Summary, error) {
	buckets := partitionBuckets(items, opts.NumWorkers, opts.Dist)
	if len(buckets) == 0 {
		return Aggregate(items, nil), nil
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	outPaths := make([]string, len(buckets))
	for i, b := range buckets {
		outPaths[i] = filepath.Join(outDir, fmt.Sprintf("worker-%d.jsonl", b.index))
	}

	watcher, err := NewResultWatcher(outPaths)
	if err != nil {
		return Summary{}, fmt.Errorf("starting result watcher: %w", err)
	}
	defer watcher.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	seededEnv := seedDeprecationEnv(buckets, legacyFiles)

	procs := make([]*exec.Cmd, len(buckets))
	done := make(chan error, len(buckets))

	for i, b := range buckets {
		args := append([]string{"--root", opts.Root, "--out", outPaths[i]}, b.files...)
		cmd := exec.CommandContext(runCtx, workerBinary(opts.WorkerBinary), args...)
		cmd.Dir = opts.Root
		cmd.Env = append(os.Environ(), "PTEST_SEEN_DEPRECATIONS="+seededEnv[i])
		cmd.Stderr = os.Stderr

		logger.Info("spawning worker", zap.Int("worker", b.index), zap.Strings("files", b.files))
		if err := cmd.Start(); err != nil {
			return Summary{}, fmt.Errorf("spawning worker %d: %w", b.index, err)
		}
		procs[i] = cmd

		go func(idx int, c *exec.Cmd) {
			done <- c.Wait()
		}(i, cmd)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var observed []worker.Result
	remaining := len(buckets)

	for remaining > 0 {
		select {
		case line := <-watcher.Lines:
			observed = append(observed, line.Result)
			if onResult != nil {
				onResult(line.Result)
			}

		case err := <-watcher.Errors:
			logger.Warn("result watch error", zap.Error(err))

		case err := <-done:
			remaining--
			if err != nil {
				logger.Warn("worker exited non-zero", zap.Error(err))
			}

		case sig := <-sigCh:
			logger.Info("forwarding signal to workers", zap.String("signal", sig.String()))
			forwardSignal(procs, syscall.SIGTERM)
			grace := opts.GracePeriod
			if grace <= 0 {
				grace = 2 * time.Second
			}
			select {
			case <-time.After(grace):
				forwardSignal(procs, syscall.SIGKILL)
			case <-done:
				remaining--
			}
		}
	}

	// Drain any result lines the watcher observed between the last
	// process exit and here (fsnotify events can lag slightly behind
	// the writer closing its file).
	drainDeadline := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case line := <-watcher.Lines:
			observed = append(observed, line.Result)
			if onResult != nil {
				onResult(line.Result)
			}
		case <-drainDeadline:
			break drain
		}
	}

	return Aggregate(items, observed), nil
}

func forwardSignal(procs []*exec.Cmd, sig syscall.Signal) {
	for _, p := range procs {
		if p == nil || p.Process == nil {
			continue
		}
		_ = p.Process.Signal(sig)
	}
}

// workerBinary resolves the ptest-worker executable: an explicit
// --worker-bin override, a sibling of the running ptest binary, or
// whatever "ptest-worker" resolves to on PATH.
func workerBinary(override string) string {
	if override != "" {
		return override
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "ptest-worker")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if path, err := exec.LookPath("ptest-worker"); err == nil {
		return path
	}
	return "ptest-worker"
}
