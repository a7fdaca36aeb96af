package worker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeFlusher struct {
	synced int
}

func (f *fakeFlusher) Sync() error {
	f.synced++
	return nil
}

func TestResultWriter_WriteFlushesAndSyncs(t *testing.T) {
	var buf bytes.Buffer
	flusher := &fakeFlusher{}
	rw := NewResultWriter(&buf, flusher)

	r := Result{NodeID: "test_x.py::test_x", Outcome: Passed, DurationMs: 12}
	if err := rw.Write(r); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if flusher.synced != 1 {
		t.Errorf("Sync() called %d times, want 1", flusher.synced)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Write() output does not end with a newline")
	}

	decoded, err := DecodeResults(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("DecodeResults() error = %v", err)
	}
	if diff := cmp.Diff([]Result{r}, decoded); diff != "" {
		t.Errorf("DecodeResults() mismatch (-want +got):\n%s", diff)
	}
}

func TestResultWriter_NilFlusherIsSafe(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResultWriter(&buf, nil)
	if err := rw.Write(Result{NodeID: "a", Outcome: Passed}); err != nil {
		t.Fatalf("Write() with nil flusher error = %v", err)
	}
}

func TestDecodeResults_MultipleLinesInOrder(t *testing.T) {
	input := `{"nodeid":"a","outcome":"passed","duration_ms":1,"stdout":"","stderr":"","error":null}
{"nodeid":"b","outcome":"failed","duration_ms":2,"stdout":"","stderr":"","error":{"type":"AssertionError","message":"boom","traceback":"tb"}}
`
	got, err := DecodeResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeResults() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("DecodeResults() returned %d results, want 2", len(got))
	}
	if got[0].NodeID != "a" || got[0].Outcome != Passed {
		t.Errorf("got[0] = %+v, want nodeid a, outcome passed", got[0])
	}
	if got[1].NodeID != "b" || got[1].Outcome != Failed {
		t.Errorf("got[1] = %+v, want nodeid b, outcome failed", got[1])
	}
	if got[1].Error == nil || got[1].Error.Message != "boom" {
		t.Errorf("got[1].Error = %+v, want message \"boom\"", got[1].Error)
	}
}

func TestDecodeResults_SkipsBlankLines(t *testing.T) {
	input := "\n{\"nodeid\":\"a\",\"outcome\":\"passed\",\"duration_ms\":0,\"stdout\":\"\",\"stderr\":\"\",\"error\":null}\n\n"
	got, err := DecodeResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeResults() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("DecodeResults() returned %d results, want 1", len(got))
	}
}

func TestDecodeResults_InvalidJSONIsError(t *testing.T) {
	if _, err := DecodeResults(strings.NewReader("not json\n")); err == nil {
		t.Fatal("DecodeResults() error = nil, want an error for invalid JSON")
	}
}
