package main

import (
	"fmt"
	"os"

	"github.com/loupe-re/loupe/internal/cli/engine"
)

func main() {
	if err := engine.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
