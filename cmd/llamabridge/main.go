// Package main is the entry point for the llamabridge executable.
//
// Usage:
//
//	llamabridge [flags] <command> [args]
//
// Commands:
//
//	run      - Keep a llama-cli process alive and serve a transport
//	history  - Show recent turns from the journal
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/wagiedev/llamabridge/cmd/llamabridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
