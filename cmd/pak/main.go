// Command pak lists, extracts, creates, rewrites, verifies, and
// mounts pak archives. All format logic lives in the library; this
// binary only parses flags and renders output.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
