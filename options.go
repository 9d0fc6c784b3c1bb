package llamabridge

import (
	"log/slog"
	"time"

	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/framer"
	"github.com/wagiedev/llamabridge/internal/prompt"
)

// Options configures a Bridge.
type Options = config.Options

// MQTTOptions configures the MQTT transport.
type MQTTOptions = config.MQTTOptions

// Template describes the chat-turn delimiters wrapped around every prompt.
type Template = prompt.Template

// NoiseRule is one entry of a noise table.
type NoiseRule = framer.Rule

// Transport kinds accepted by WithTransportKind.
const (
	TransportStdio = config.TransportStdio
	TransportMQTT  = config.TransportMQTT
	TransportMCP   = config.TransportMCP
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions builds Options from the defaults and opts.
func applyOptions(opts []Option) *Options {
	options := config.Default()
	for _, opt := range opts {
		opt(options)
	}

	options.ApplyDefaults()

	return options
}

// LoadOptions reads a YAML config file. The result can be passed to
// WithOptions and refined by later options.
func LoadOptions(path string) (*Options, error) {
	return config.Load(path)
}

// ChatML returns the ChatML template used by Qwen instruct models.
func ChatML() Template {
	return prompt.ChatML()
}

// TemplatePreset returns the built-in chat template registered under name.
func TemplatePreset(name string) (Template, bool) {
	return config.TemplatePreset(name)
}

// TemplatePresetNames returns the names accepted by TemplatePreset.
func TemplatePresetNames() []string {
	return config.TemplatePresetNames()
}

// NoisePrefix returns a rule dropping lines that start with pattern.
func NoisePrefix(pattern string) NoiseRule {
	return framer.Prefix(pattern)
}

// NoiseExact returns a rule dropping lines equal to pattern.
func NoiseExact(pattern string) NoiseRule {
	return framer.Exact(pattern)
}

// ===== Basic Configuration =====

// WithOptions replaces every setting with a copy of base, typically from
// LoadOptions. Options after it refine the copy.
func WithOptions(base *Options) Option {
	return func(o *Options) {
		if base != nil {
			*o = *base
		}
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithExecutable sets the llama-cli binary. A bare name is searched in PATH.
func WithExecutable(path string) Option {
	return func(o *Options) {
		o.Executable = path
	}
}

// WithModel sets the GGUF model file.
func WithModel(path string) Option {
	return func(o *Options) {
		o.Model = path
	}
}

// WithMaxTokens bounds the length of each reply.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithThreads sets the thread-count hint passed to llama-cli.
func WithThreads(n int) Option {
	return func(o *Options) {
		o.Threads = n
	}
}

// WithExtraArgs appends arguments to the llama-cli command line.
func WithExtraArgs(args ...string) Option {
	return func(o *Options) {
		o.ExtraArgs = append(o.ExtraArgs, args...)
	}
}

// WithCwd sets the working directory for the process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// ===== Prompting =====

// WithInitPrompt sets the instruction sent once to every new process.
// An empty prompt disables it.
func WithInitPrompt(text string) Option {
	return func(o *Options) {
		o.InitPrompt = text
	}
}

// WithTemplate sets the chat template.
func WithTemplate(t Template) Option {
	return func(o *Options) {
		o.Template = t
	}
}

// WithTemplatePreset selects a built-in chat template by name
// ("chatml", "qwen", "llama3", "gemma"). Unknown names are ignored.
func WithTemplatePreset(name string) Option {
	return func(o *Options) {
		if t, ok := config.TemplatePreset(name); ok {
			o.TemplatePreset = name
			o.Template = t
		}
	}
}

// ===== Output Framing =====

// WithMarker sets the boundary prefix that closes a reply.
func WithMarker(marker string) Option {
	return func(o *Options) {
		o.Marker = marker
	}
}

// WithNoise appends rules to the stdout noise table.
func WithNoise(rules ...NoiseRule) Option {
	return func(o *Options) {
		o.Noise = o.Noise.With(rules...)
	}
}

// WithStderrNoise appends rules to the table of suppressed stderr lines.
func WithStderrNoise(rules ...NoiseRule) Option {
	return func(o *Options) {
		o.StderrNoise = o.StderrNoise.With(rules...)
	}
}

// WithPlaceholder sets the text delivered in place of an empty reply.
func WithPlaceholder(text string) Option {
	return func(o *Options) {
		o.Placeholder = text
	}
}

// WithStderr sets a callback receiving every non-suppressed stderr line.
// The callback runs on the stderr pump and must not block.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// ===== Timing =====

// WithPollInterval sets how often the poller checks for replies.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollInterval = d
	}
}

// WithShutdownTimeouts sets the bounds of the termination sequence: the wait
// for the stream pumps, the wait after SIGTERM and the wait after SIGKILL.
func WithShutdownTimeouts(pumpJoin, graceful, kill time.Duration) Option {
	return func(o *Options) {
		o.PumpJoinTimeout = pumpJoin
		o.GracefulTimeout = graceful
		o.KillTimeout = kill
	}
}

// WithResponseTimeout bounds how long request/response transports wait for
// a reply.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ResponseTimeout = d
	}
}

// ===== Journal =====

// WithJournal records every delivered reply in a badger store under dir.
func WithJournal(dir string) Option {
	return func(o *Options) {
		o.Journal.Dir = dir
		o.Journal.InMemory = false
	}
}

// WithInMemoryJournal records delivered replies in memory only.
func WithInMemoryJournal() Option {
	return func(o *Options) {
		o.Journal.Dir = ""
		o.Journal.InMemory = true
	}
}

// ===== Transport =====

// WithTransport uses a caller-provided transport.
func WithTransport(t Transport) Option {
	return func(o *Options) {
		o.Transport.Instance = t
	}
}

// WithTransportKind selects a built-in transport: "stdio", "mqtt" or "mcp".
func WithTransportKind(kind string) Option {
	return func(o *Options) {
		o.Transport.Kind = kind
	}
}

// WithMQTT selects the MQTT transport with the given settings. Zero fields
// keep their defaults.
func WithMQTT(m MQTTOptions) Option {
	return func(o *Options) {
		o.Transport.Kind = config.TransportMQTT

		if m.Broker != "" {
			o.Transport.MQTT.Broker = m.Broker
		}

		if m.RequestTopic != "" {
			o.Transport.MQTT.RequestTopic = m.RequestTopic
		}

		if m.ResponseTopic != "" {
			o.Transport.MQTT.ResponseTopic = m.ResponseTopic
		}

		if m.ClientID != "" {
			o.Transport.MQTT.ClientID = m.ClientID
		}

		if m.Username != "" {
			o.Transport.MQTT.Username = m.Username
			o.Transport.MQTT.Password = m.Password
		}

		if m.QoS != 0 {
			o.Transport.MQTT.QoS = m.QoS
		}

		if m.KeepAlive != 0 {
			o.Transport.MQTT.KeepAlive = m.KeepAlive
		}
	}
}
