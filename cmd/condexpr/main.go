// Command condexpr parses and evaluates condition expressions.
package main

import (
	"log/slog"
	"os"

	"github.com/zephyrtronium/condexpr/internal/log"
)

func main() {
	if err := run(os.Stdout, os.Stderr, os.Exit, os.Args[1:]...); err != nil {
		log.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
