// Package cmdtest provides a testscript-based test harness for the
// ptest CLI tools.
//
// It uses txtar format test files to specify input files and expected
// outputs, making it easy to write comprehensive CLI tests.
//
// Example test file:
//
//	# Test that ptest lists discovered tests without running them
//	exec ptest --collect-only .
//	stdout 'test_sample.py::test_one'
//
//	-- test_sample.py --
//	def test_one():
//	    assert.eq(1, 1)
package cmdtest

import (
	"io"
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/hughhan1/rtest/internal/cmd/ptest"
	"github.com/hughhan1/rtest/internal/cmd/ptestworker"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			return nil
		},
	})
}

// Main is the TestMain function that should be called from test files.
// It sets up the CLI tools as testscript commands.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"ptest":        wrapRun(ptest.Run),
		"ptest-worker": wrapRun(ptestworker.Run),
	}))
}

// wrapRun wraps a Run(args, stdout, stderr) int function to func() int for
// testscript. The args are taken from os.Args[1:].
func wrapRun(run func(args []string, stdout, stderr io.Writer) int) func() int {
	return func() int {
		return run(os.Args[1:], os.Stdout, os.Stderr)
	}
}
