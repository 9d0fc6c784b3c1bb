package commands

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configFile string

	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "llamabridge",
	Short: "Bridge a local llama-cli process to a message transport",
	Long: `llamabridge keeps one interactive llama-cli process running and moves
requests into it and framed replies back out.

Requests arrive on a transport:
  stdio   one request per input line, one reply per output line
  mqtt    requests on audio_asr, replies on llm_response
  mcp     an MCP server exposing a "prompt" tool

Examples:
  # Serve stdin/stdout with a Qwen model
  llamabridge run --model ~/models/qwen2.5-0.5b-instruct-q4_k_m.gguf

  # Serve an MQTT bus and journal every turn
  llamabridge run -c bridge.yaml --transport mqtt --journal ~/.llamabridge

  # Show the last ten turns
  llamabridge history --journal ~/.llamabridge -n 10`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logLevel.Set(slog.LevelDebug)
		} else {
			logLevel.Set(slog.LevelInfo)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
}

// newLogger returns a text logger writing to w at the level set by --verbose.
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
