// Package main is the entry point for the scribe CLI.
//
// Usage:
//
//	scribe [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the meeting-assistant API server
//	review   - Review labeled wiki pages and comment the results
//	history  - Summarize reviewed pages into a history comment
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/umeet/scribe/cmd/scribe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
