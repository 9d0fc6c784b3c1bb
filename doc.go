// Package llamabridge keeps a local llama-cli process alive and bridges it to
// a message transport.
//
// The bridge launches llama-cli in interactive mode, sends it a one-time
// instruction, wraps each request in the model's chat template and frames
// the process output back into whole replies. Banner, diagnostic and
// template noise is removed before a reply is published.
//
// # Basic Usage
//
//	bridge, err := llamabridge.New(
//	    llamabridge.WithModel("/models/qwen2.5-0.5b-instruct-q4_k_m.gguf"),
//	    llamabridge.WithThreads(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Close()
//
//	if err := bridge.Start(ctx); err != nil {
//	    log.Printf("llama-cli not started yet: %v", err)
//	}
//
//	// Serves stdin/stdout until ctx is done or stdin ends.
//	if err := bridge.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transports
//
// Requests arrive on a Transport and replies leave through it. The built-in
// transports are stdio (one request per line), MQTT (WithMQTT) and an MCP
// server exposing a "prompt" tool (WithTransportKind(TransportMCP)). A custom
// transport is installed with WithTransport.
//
// The model answers one request at a time. Stdio and MQTT do not wait for a
// reply before forwarding the next request; the MCP tool does.
//
// # Process Lifecycle
//
// A dead process is restarted on the next request. If the restart fails
// the request is dropped with ErrProcessUnavailable and nothing is
// published. Close stops the stream readers, then escalates from closing
// stdin to SIGTERM and SIGKILL, each step bounded by the timeouts set with
// WithShutdownTimeouts.
//
// # Error Handling
//
// Errors are typed and can be inspected with errors.As:
//
//	var launchErr *llamabridge.LaunchError
//	if errors.As(err, &launchErr) {
//	    fmt.Println("missing:", launchErr.Missing)
//	}
//
// # Journal
//
// WithJournal records every published reply, with the request it answered,
// in a badger store. History returns the newest entries first.
package llamabridge
