// Package ptestworker implements the ptest-worker CLI: run a batch of
// test files assigned by the driver and write a JSONL result stream.
// Importable both by cmd/ptest-worker/main.go and by the testscript
// harness.
package ptestworker

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hughhan1/rtest/internal/version"
	"github.com/hughhan1/rtest/internal/worker"
)

// Exit codes
const (
	ExitOK    = 0
	ExitFail  = 1
	ExitUsage = 2
)

// Run parses args and executes one ptest-worker invocation.
func Run(args []string, stdout, stderr io.Writer) int {
	var (
		root        string
		outPath     string
		versionFlag bool
	)

	fs := flag.NewFlagSet("ptest-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&root, "root", "", "collection root (relative NodeIds are resolved against it)")
	fs.StringVar(&outPath, "out", "", "JSONL result output path")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")

	fs.Usage = func() {
		writeln(stderr, "Usage: ptest-worker --root <dir> --out <path> <files...>")
		writeln(stderr)
		writeln(stderr, "Runs a batch of test files and writes one JSON result per line to --out.")
		writeln(stderr, "Spawned by ptest; not intended to be run directly.")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitOK
		}
		return ExitUsage
	}

	if versionFlag {
		writef(stdout, "ptest-worker %s\n", version.String())
		return ExitOK
	}

	files := fs.Args()
	if root == "" || outPath == "" || len(files) == 0 {
		fs.Usage()
		return ExitUsage
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		writef(stderr, "ptest-worker: opening %s: %v\n", outPath, err)
		return ExitUsage
	}
	defer out.Close()

	writer := worker.NewResultWriter(out, out)

	var stderrBuf strings.Builder
	engine := worker.NewStarlarkEngine()

	code, err := worker.Batch(engine, root, files, writer, &stderrBuf)
	if stderrBuf.Len() > 0 {
		fmt.Fprint(stderr, stderrBuf.String())
	}
	if err != nil {
		writef(stderr, "ptest-worker: %v\n", err)
		return ExitFail
	}
	return code
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
