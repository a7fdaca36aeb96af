// Package ptest implements the ptest CLI's argument parsing and
// orchestration, importable both by cmd/ptest/main.go and by the
// testscript harness.
package ptest

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/hughhan1/rtest/internal/driver"
	"github.com/hughhan1/rtest/internal/version"
	"github.com/hughhan1/rtest/internal/worker"
)

// Exit codes
const (
	ExitOK    = 0
	ExitFail  = 1
	ExitUsage = 2
)

// Run parses args and executes one ptest invocation, writing to stdout
// and stderr and returning the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	var (
		runnerFlag      string
		numProcsFlag    int
		distFlag        string
		collectOnlyFlag bool
		verboseFlag     bool
		versionFlag     bool
		workerBinFlag   string
	)

	fs := flag.NewFlagSet("ptest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&runnerFlag, "runner", "native", "test execution backend (only \"native\" is supported)")
	fs.IntVar(&numProcsFlag, "n", runtime.NumCPU(), "number of worker processes")
	fs.IntVar(&numProcsFlag, "numprocesses", runtime.NumCPU(), "number of worker processes")
	fs.StringVar(&distFlag, "dist", "loadgroup", "distribution mode: load or loadgroup")
	fs.BoolVar(&collectOnlyFlag, "collect-only", false, "only discover and print tests, run nothing")
	fs.BoolVar(&verboseFlag, "v", false, "print each result as it arrives")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")
	fs.StringVar(&workerBinFlag, "worker-bin", "", "path to the ptest-worker binary (defaults to a sibling of this binary, then $PATH)")

	fs.Usage = func() {
		writeln(stderr, "Usage: ptest [flags] <paths...>")
		writeln(stderr)
		writeln(stderr, "Parallel test runner: discovers tests statically, distributes them")
		writeln(stderr, "across worker processes, and aggregates their JSONL results.")
		writeln(stderr)
		writeln(stderr, "Flags:")
		fs.PrintDefaults()
		writeln(stderr)
		writeln(stderr, "Examples:")
		writeln(stderr, "  ptest tests/                  # run every test_*.py / *_test.py under tests/")
		writeln(stderr, "  ptest -n 4 tests/              # force 4 worker processes")
		writeln(stderr, "  ptest --dist load tests/       # ignore xdist_group affinity")
		writeln(stderr, "  ptest --collect-only tests/    # list discovered NodeIds, run nothing")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitOK
		}
		return ExitUsage
	}

	if versionFlag {
		writef(stdout, "ptest %s\n", version.String())
		return ExitOK
	}

	if runnerFlag != "native" {
		writef(stderr, "ptest: unsupported --runner %q\n", runnerFlag)
		return ExitUsage
	}

	dist, err := driver.ParseDistMode(distFlag)
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}

	if numProcsFlag <= 0 {
		writeln(stderr, "ptest: -n/--numprocesses must be positive")
		return ExitUsage
	}

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	root, err := os.Getwd()
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}

	opts := driver.Options{
		Root:         root,
		Paths:        paths,
		NumWorkers:   numProcsFlag,
		Dist:         dist,
		WorkerBinary: workerBinFlag,
	}

	items, legacyFiles, err := driver.Collect(opts)
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}

	if collectOnlyFlag {
		driver.ReportCollectOnly(stdout, items)
		return ExitOK
	}

	if len(items) == 0 {
		writeln(stdout, "no tests found")
		return ExitOK
	}

	outDir, err := os.MkdirTemp("", "ptest-run-")
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}
	defer os.RemoveAll(outDir)

	lock, err := driver.AcquireRunLock(outDir)
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}
	defer lock.Release()

	var onResult func(worker.Result)
	if verboseFlag {
		onResult = func(r worker.Result) { driver.ReportResult(stdout, r) }
	}

	start := time.Now()
	summary, err := driver.Run(context.Background(), opts, items, legacyFiles, outDir, onResult)
	if err != nil {
		writef(stderr, "ptest: %v\n", err)
		return ExitUsage
	}

	if !verboseFlag {
		driver.ReportSummary(stdout, summary)
	} else {
		writef(stdout, "%d passed, %d failed, %d skipped, %d error in %s\n",
			summary.Passed, summary.Failed, summary.Skipped, summary.Errored, time.Since(start).Round(time.Millisecond))
	}

	return summary.ExitCode()
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
