// Package config provides configuration types for the llama bridge.
package config

import "context"

// RequestHandler receives one inbound text request from a transport.
// A returned error means the request was dropped; transports that cannot
// report failures to their peer only log it.
type RequestHandler func(ctx context.Context, text string) error

// Transport defines the interface for the external collaborator that
// delivers requests and receives responses.
//
// Implement this to provide custom transports for testing, mocking, or
// other message buses. Built-in implementations cover stdio, MQTT and MCP.
type Transport interface {
	// Serve delivers inbound requests to handle until ctx is done or the
	// transport fails. Requests are delivered one at a time.
	Serve(ctx context.Context, handle RequestHandler) error

	// Publish sends one response text to the peer.
	// This method must be safe for concurrent use with Serve.
	Publish(ctx context.Context, text string) error

	// Close releases transport resources.
	// It's safe to call Close multiple times.
	Close() error
}
