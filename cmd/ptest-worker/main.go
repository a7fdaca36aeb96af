// Command ptest-worker runs one batch of test files assigned to it by the
// driver and writes a JSONL result stream. It is never invoked directly by
// a person; the driver spawns it once per worker slot.
package main

import (
	"os"

	"github.com/hughhan1/rtest/internal/cmd/ptestworker"
)

func main() {
	os.Exit(ptestworker.Run(os.Args[1:], os.Stdout, os.Stderr))
}
