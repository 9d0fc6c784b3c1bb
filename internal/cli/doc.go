// Package cli provides executable discovery, model validation, and command
// building for the llama-cli binary.
//
// # Discovery
//
// The Discoverer interface locates the executable and checks the model:
//
//	discoverer := cli.NewDiscoverer(&cli.Config{
//	    Executable: "llama-cli",
//	    Model:      "/models/qwen2.5-1.5b-instruct-q8_0.gguf",
//	    Logger:     slog.Default(),
//	})
//	path, err := discoverer.Discover(ctx)
//
// An executable given as a path is used as-is. A bare name is searched in:
//  1. System PATH
//  2. /usr/local/bin, /usr/bin, ~/.local/bin, ~/llama.cpp/build/bin
//
// # Command Building
//
//	args := cli.BuildArgs(options) // -m <model> -n <max> --threads <n> -i
package cli
