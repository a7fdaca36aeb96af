// Command ptest discovers test files, schedules them across worker
// sub-processes, and reports the aggregated pass/fail/skip/error outcome.
package main

import (
	"os"

	"github.com/hughhan1/rtest/internal/cmd/ptest"
)

func main() {
	os.Exit(ptest.Run(os.Args[1:], os.Stdout, os.Stderr))
}
