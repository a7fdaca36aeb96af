package driver

import (
	"strings"
	"testing"

	"github.com/hughhan1/rtest/internal/pyscan"
	"github.com/hughhan1/rtest/internal/worker"
)

func TestReportCollectOnly_Empty(t *testing.T) {
	var buf strings.Builder
	ReportCollectOnly(&buf, nil)
	out := buf.String()
	if !strings.Contains(out, "No tests found") {
		t.Errorf("output = %q, want it to mention no tests found", out)
	}
	if !strings.Contains(out, "collected 0 items") {
		t.Errorf("output = %q, want \"collected 0 items\"", out)
	}
}

func TestReportCollectOnly_ListsNodeIDs(t *testing.T) {
	var buf strings.Builder
	items := []pyscan.ExecutableItem{
		{NodeID: "a.py::test_a"},
		{NodeID: "b.py::test_b"},
	}
	ReportCollectOnly(&buf, items)
	out := buf.String()
	if !strings.Contains(out, "a.py::test_a") || !strings.Contains(out, "b.py::test_b") {
		t.Errorf("output = %q, want both NodeIDs listed", out)
	}
	if !strings.Contains(out, "collected 2 items") {
		t.Errorf("output = %q, want \"collected 2 items\"", out)
	}
}

func TestReportResult_EachOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result worker.Result
		want   string
	}{
		{
			name:   "passed",
			result: worker.Result{NodeID: "a", Outcome: worker.Passed},
			want:   "PASSED  a",
		},
		{
			name:   "failed",
			result: worker.Result{NodeID: "a", Outcome: worker.Failed, Error: &worker.ResultError{Message: "boom"}},
			want:   "FAILED  a - boom",
		},
		{
			name:   "skipped",
			result: worker.Result{NodeID: "a", Outcome: worker.Skipped, Error: &worker.ResultError{Reason: "flaky"}},
			want:   "SKIPPED a - flaky",
		},
		{
			name:   "error",
			result: worker.Result{NodeID: "a", Outcome: worker.Errored, Error: &worker.ResultError{Message: "oops"}},
			want:   "ERROR   a - oops",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			ReportResult(&buf, tt.result)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestReportSummary_CountsAndNonPassingDetails(t *testing.T) {
	s := Summary{
		Passed: 1, Failed: 1, Skipped: 1, Errored: 1,
		Results: []worker.Result{
			{NodeID: "a", Outcome: worker.Passed},
			{NodeID: "b", Outcome: worker.Failed, Error: &worker.ResultError{Message: "assert failed"}},
			{NodeID: "c", Outcome: worker.Skipped},
			{NodeID: "d", Outcome: worker.Errored, Error: &worker.ResultError{Message: "import error"}},
		},
	}

	var buf strings.Builder
	ReportSummary(&buf, s)
	out := buf.String()

	if !strings.Contains(out, "1 passed, 1 failed, 1 skipped, 1 error") {
		t.Errorf("output = %q, want the summary line", out)
	}
	if !strings.Contains(out, "FAILED b: assert failed") {
		t.Errorf("output = %q, want failed detail line", out)
	}
	if !strings.Contains(out, "ERROR d: import error") {
		t.Errorf("output = %q, want error detail line", out)
	}
	if strings.Contains(out, "PASSED a:") || strings.Contains(out, "SKIPPED c:") {
		t.Errorf("output = %q, passing/skipped results should not get a detail line", out)
	}
}
