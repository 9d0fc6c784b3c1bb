package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/llamabridge"
)

var runFlags struct {
	transport     string
	executable    string
	model         string
	maxTokens     int
	threads       int
	pollInterval  time.Duration
	journal       string
	broker        string
	requestTopic  string
	responseTopic string
	template      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	Long: `Start llama-cli and serve the configured transport until SIGINT or
SIGTERM. Flags override values from the config file.

A launch failure is logged and retried on the next request, so the bridge
keeps serving while the model file or executable is being fixed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := loadRunOptions(cmd)
		if err != nil {
			return err
		}

		log := newLogger(cmd.ErrOrStderr())

		bridge, err := llamabridge.New(
			llamabridge.WithOptions(options),
			llamabridge.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer bridge.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := bridge.Start(ctx); err != nil {
			log.Error("Failed to start llama-cli, retrying on the next request", "error", err)
		}

		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		log.Info("Shutting down")

		return nil
	},
}

// loadConfigOnly reads the config file without applying flags.
func loadConfigOnly() (*llamabridge.Options, error) {
	return llamabridge.LoadOptions(configFile)
}

// loadRunOptions reads the config file and applies the flags that were set.
func loadRunOptions(cmd *cobra.Command) (*llamabridge.Options, error) {
	options, err := loadConfigOnly()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("transport") {
		options.Transport.Kind = runFlags.transport
	}

	if flags.Changed("executable") {
		options.Executable = runFlags.executable
	}

	if flags.Changed("model") {
		options.Model = runFlags.model
	}

	if flags.Changed("max-tokens") {
		options.MaxTokens = runFlags.maxTokens
	}

	if flags.Changed("threads") {
		options.Threads = runFlags.threads
	}

	if flags.Changed("poll-interval") {
		options.PollInterval = runFlags.pollInterval
	}

	if flags.Changed("journal") {
		options.Journal.Dir = runFlags.journal
	}

	if flags.Changed("template") {
		t, ok := llamabridge.TemplatePreset(runFlags.template)
		if !ok {
			return nil, fmt.Errorf("unknown template %q, want one of %s",
				runFlags.template, strings.Join(llamabridge.TemplatePresetNames(), ", "))
		}

		options.TemplatePreset = runFlags.template
		options.Template = t
	}

	mqtt := &options.Transport.MQTT

	if flags.Changed("broker") {
		mqtt.Broker = runFlags.broker
	}

	if flags.Changed("request-topic") {
		mqtt.RequestTopic = runFlags.requestTopic
	}

	if flags.Changed("response-topic") {
		mqtt.ResponseTopic = runFlags.responseTopic
	}

	options.ApplyDefaults()

	return options, nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.transport, "transport", llamabridge.TransportStdio, "transport: stdio, mqtt or mcp")
	f.StringVar(&runFlags.executable, "executable", "", "llama-cli executable (default: search PATH)")
	f.StringVarP(&runFlags.model, "model", "m", "", "GGUF model file")
	f.IntVarP(&runFlags.maxTokens, "max-tokens", "n", 0, "maximum tokens per reply")
	f.IntVar(&runFlags.threads, "threads", 0, "llama-cli thread count")
	f.DurationVar(&runFlags.pollInterval, "poll-interval", 0, "response poll interval (e.g. 100ms)")
	f.StringVar(&runFlags.journal, "journal", "", "journal directory (disabled when empty)")
	f.StringVar(&runFlags.template, "template", "", "chat template preset")
	f.StringVar(&runFlags.broker, "broker", "", "MQTT broker URL")
	f.StringVar(&runFlags.requestTopic, "request-topic", "", "MQTT request topic")
	f.StringVar(&runFlags.responseTopic, "response-topic", "", "MQTT response topic")

	rootCmd.AddCommand(runCmd)
}
