// Package mcp exposes the bridge as a Model Context Protocol server.
//
// The server offers two tools. "prompt" dispatches its text argument to the
// model and returns the next reply; calls are serialized because the model
// process handles one turn at a time. "status" reports whether the process
// is alive.
package mcp
