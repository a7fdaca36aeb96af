package driver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hughhan1/rtest/internal/pyscan"
	"github.com/hughhan1/rtest/internal/worker"
)

// crashMessage is the synthetic error message for a NodeId assigned to a
// worker that exited without ever reporting a result for it.
const crashMessage = "worker crashed before running test"

// Summary is the aggregated outcome counts plus every collected result,
// sorted by NodeId for any persisted form.
type Summary struct {
	Passed  int
	Failed  int
	Skipped int
	Errored int
	Results []worker.Result
}

// ExitCode is 0 iff no item outcome as failed or error; skipped-only is
// success.
func (s Summary) ExitCode() int {
	if s.Failed == 0 && s.Errored == 0 {
		return 0
	}
	return 1
}

// Aggregate folds every observed Result plus synthetic crash records for
// any assigned NodeId that never got one, producing a NodeId-sorted
// Summary.
func Aggregate(assigned []pyscan.ExecutableItem, observed []worker.Result) Summary {
	byNodeID := make(map[string]worker.Result, len(observed))
	for _, r := range observed {
		byNodeID[r.NodeID] = r
	}

	results := make([]worker.Result, 0, len(assigned))
	for _, item := range assigned {
		id := string(item.NodeID)
		if r, ok := byNodeID[id]; ok {
			results = append(results, r)
			continue
		}
		results = append(results, worker.Result{
			NodeID:    id,
			Outcome:   worker.Errored,
			ErrorType: "WorkerCrash",
			Error:     &worker.ResultError{Type: "WorkerCrash", Message: crashMessage},
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].NodeID < results[j].NodeID })

	var s Summary
	s.Results = results
	for _, r := range results {
		switch r.Outcome {
		case worker.Passed:
			s.Passed++
		case worker.Failed:
			s.Failed++
		case worker.Skipped:
			s.Skipped++
		default:
			s.Errored++
		}
	}
	return s
}

// MissingResultDiff renders a unified diff of expected-vs-observed NodeIds
// for diagnosing a worker that exited without accounting for its whole
// batch.
func MissingResultDiff(assigned []pyscan.ExecutableItem, observed []worker.Result) (string, error) {
	expected := make([]string, len(assigned))
	for i, item := range assigned {
		expected[i] = string(item.NodeID)
	}
	sort.Strings(expected)

	got := make([]string, len(observed))
	for i, r := range observed {
		got[i] = r.NodeID
	}
	sort.Strings(got)

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(expected, "\n")),
		B:        difflib.SplitLines(strings.Join(got, "\n")),
		FromFile: "expected",
		ToFile:   "observed",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render nodeid diff: %w", err)
	}
	return text, nil
}
