package driver

import (
	"fmt"
	"io"
	"strings"

	"github.com/hughhan1/rtest/internal/pyscan"
	"github.com/hughhan1/rtest/internal/worker"
)

// writef and writeln ignore write errors: stdout/stderr have no
// reasonable recovery path if the pipe is broken, and the process exit
// code still reflects the actual run outcome.
func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// ReportCollectOnly prints one NodeId per line plus the `collected <N>
// items` footer and reports nothing else; called instead of spawning any
// worker.
func ReportCollectOnly(w io.Writer, items []pyscan.ExecutableItem) {
	if len(items) == 0 {
		writeln(w, "No tests found")
		writeln(w, "collected 0 items")
		return
	}
	for _, item := range items {
		writeln(w, string(item.NodeID))
	}
	writef(w, "collected %d items\n", len(items))
}

// ReportResult prints one line per test as results arrive, when verbose
// output was requested.
func ReportResult(w io.Writer, r worker.Result) {
	switch r.Outcome {
	case worker.Passed:
		writef(w, "PASSED  %s\n", r.NodeID)
	case worker.Failed:
		writef(w, "FAILED  %s - %s\n", r.NodeID, errMessage(r))
	case worker.Skipped:
		writef(w, "SKIPPED %s - %s\n", r.NodeID, errReason(r))
	default:
		writef(w, "ERROR   %s - %s\n", r.NodeID, errMessage(r))
	}
}

// ReportSummary prints the aggregate counts and, for every non-passing
// result, its message.
func ReportSummary(w io.Writer, s Summary) {
	for _, r := range s.Results {
		if r.Outcome == worker.Failed || r.Outcome == worker.Errored {
			writef(w, "%s %s: %s\n", strings.ToUpper(string(r.Outcome)), r.NodeID, errMessage(r))
		}
	}
	writef(w, "%d passed, %d failed, %d skipped, %d error\n", s.Passed, s.Failed, s.Skipped, s.Errored)
}

func errMessage(r worker.Result) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

func errReason(r worker.Result) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Reason
}
