package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wagiedev/llamabridge/internal/framer"
	"github.com/wagiedev/llamabridge/internal/prompt"
)

// Default values for process invocation and timing.
const (
	DefaultExecutable      = "llama-cli"
	DefaultMaxTokens       = 256
	DefaultThreads         = 4
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultPopWait         = 100 * time.Millisecond
	DefaultPumpJoinTimeout = 1 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 5 * time.Second
	DefaultResponseTimeout = 60 * time.Second
	DefaultPlaceholder     = "未能生成有效的回复。"
)

// DefaultInitPrompt is the system instruction sent once to every new process.
// It restricts replies to a single robot motion command code.
const DefaultInitPrompt = "你是一个机器人动作指令解析器。你的任务是将用户的自然语言指令转换为标准化的机器人动作控制命令。" +
	"请严格按照以下格式输出：是前进就回复0x01，后退就回复0x02,左转回复0x03，右转回复0x04，" +
	"你今后所有的回复都只得按照此模板恢复，不要包含任何其他文字或解释，只输出一行符合格式的命令。"

// Options configures the bridge.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger `yaml:"-"`

	// Executable is the llama-cli binary. A bare name is searched in PATH
	// and common install directories.
	Executable string `yaml:"executable"`

	// Model is the path to the GGUF model file.
	Model string `yaml:"model"`

	// MaxTokens bounds the length of each generated reply (-n).
	MaxTokens int `yaml:"max_tokens"`

	// Threads is the thread-count hint (--threads).
	Threads int `yaml:"threads"`

	// ExtraArgs are appended to the generated command line.
	ExtraArgs []string `yaml:"extra_args"`

	// Cwd sets the working directory for the process.
	Cwd string `yaml:"cwd"`

	// InitPrompt is sent once to every new process. Empty disables it.
	InitPrompt string `yaml:"init_prompt"`

	// TemplatePreset names a built-in chat template; Template wins when set.
	TemplatePreset string `yaml:"template_preset"`

	// Template wraps every prompt.
	Template prompt.Template `yaml:"template"`

	// Marker is the boundary prefix printed by llama-cli after each reply.
	Marker string `yaml:"marker"`

	// Noise is the stdout noise table.
	Noise framer.Rules `yaml:"-"`

	// ExtraNoise is appended to Noise when loading a config file.
	ExtraNoise framer.Rules `yaml:"extra_noise"`

	// StderrNoise lists stderr lines that are suppressed.
	StderrNoise framer.Rules `yaml:"stderr_noise"`

	// Placeholder replaces a reply that is empty after trimming.
	Placeholder string `yaml:"placeholder"`

	// PollInterval is the poller tick.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PopWait bounds one pop attempt by the poller.
	PopWait time.Duration `yaml:"pop_wait"`

	// PumpJoinTimeout bounds the wait for stream pumps on shutdown.
	PumpJoinTimeout time.Duration `yaml:"pump_join_timeout"`

	// GracefulTimeout bounds the wait after SIGTERM.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration `yaml:"kill_timeout"`

	// ResponseTimeout bounds request/response transports waiting for a reply.
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	// Stderr receives every non-suppressed stderr line.
	Stderr func(line string) `yaml:"-"`

	// Journal configures the turn journal.
	Journal JournalOptions `yaml:"journal"`

	// Transport selects and configures the external transport.
	Transport TransportOptions `yaml:"transport"`
}

// JournalOptions configures the badger-backed turn journal.
type JournalOptions struct {
	// Dir is the badger data directory. Empty disables the journal unless InMemory is set.
	Dir string `yaml:"dir"`
	// InMemory keeps the journal in memory only.
	InMemory bool `yaml:"in_memory"`
}

// Enabled reports whether a journal should be opened.
func (j JournalOptions) Enabled() bool {
	return j.Dir != "" || j.InMemory
}

// TransportOptions configures the external transport.
type TransportOptions struct {
	// Kind is one of "stdio", "mqtt" or "mcp".
	Kind string      `yaml:"kind"`
	MQTT MQTTOptions `yaml:"mqtt"`

	// Instance overrides Kind with a caller-provided transport.
	Instance Transport `yaml:"-"`
}

// MQTTOptions configures the MQTT bus transport.
type MQTTOptions struct {
	Broker        string `yaml:"broker"`
	RequestTopic  string `yaml:"request_topic"`
	ResponseTopic string `yaml:"response_topic"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	QoS           byte   `yaml:"qos"`
	KeepAlive     uint16 `yaml:"keep_alive"`
}

// Default returns options populated with the built-in defaults.
func Default() *Options {
	return &Options{
		Executable:      DefaultExecutable,
		MaxTokens:       DefaultMaxTokens,
		Threads:         DefaultThreads,
		InitPrompt:      DefaultInitPrompt,
		Template:        prompt.ChatML(),
		Marker:          framer.DefaultMarker,
		Noise:           framer.DefaultNoise.With(),
		StderrNoise:     framer.DefaultStderrNoise.With(),
		Placeholder:     DefaultPlaceholder,
		PollInterval:    DefaultPollInterval,
		PopWait:         DefaultPopWait,
		PumpJoinTimeout: DefaultPumpJoinTimeout,
		GracefulTimeout: DefaultGracefulTimeout,
		KillTimeout:     DefaultKillTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		Transport: TransportOptions{
			Kind: TransportStdio,
			MQTT: MQTTOptions{
				Broker:        "mqtt://127.0.0.1:1883",
				RequestTopic:  "audio_asr",
				ResponseTopic: "llm_response",
				QoS:           1,
				KeepAlive:     20,
			},
		},
	}
}

// ApplyDefaults fills zero-valued fields with defaults. Fields that are
// meaningful when empty (InitPrompt, ExtraArgs) are left alone.
func (o *Options) ApplyDefaults() {
	d := Default()

	if o.Executable == "" {
		o.Executable = d.Executable
	}

	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}

	if o.Threads <= 0 {
		o.Threads = d.Threads
	}

	if o.Template.IsZero() {
		o.Template = d.Template
	}

	if o.Marker == "" {
		o.Marker = d.Marker
	}

	if o.Noise == nil {
		o.Noise = d.Noise
	}

	if o.StderrNoise == nil {
		o.StderrNoise = d.StderrNoise
	}

	if o.Placeholder == "" {
		o.Placeholder = d.Placeholder
	}

	setDuration(&o.PollInterval, d.PollInterval)
	setDuration(&o.PopWait, d.PopWait)
	setDuration(&o.PumpJoinTimeout, d.PumpJoinTimeout)
	setDuration(&o.GracefulTimeout, d.GracefulTimeout)
	setDuration(&o.KillTimeout, d.KillTimeout)
	setDuration(&o.ResponseTimeout, d.ResponseTimeout)

	o.Transport.Kind = NormalizeTransportKind(o.Transport.Kind)

	m := &o.Transport.MQTT
	if m.Broker == "" {
		m.Broker = d.Transport.MQTT.Broker
	}

	if m.RequestTopic == "" {
		m.RequestTopic = d.Transport.MQTT.RequestTopic
	}

	if m.ResponseTopic == "" {
		m.ResponseTopic = d.Transport.MQTT.ResponseTopic
	}

	if m.KeepAlive == 0 {
		m.KeepAlive = d.Transport.MQTT.KeepAlive
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// Validate reports configuration errors that would make every launch fail.
func (o *Options) Validate() error {
	var errs []error

	if o.Executable == "" {
		errs = append(errs, errors.New("executable is required"))
	}

	if o.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}

	if o.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", o.MaxTokens))
	}

	if o.Threads <= 0 {
		errs = append(errs, fmt.Errorf("threads must be positive, got %d", o.Threads))
	}

	if o.Transport.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", o.Transport.MQTT.QoS))
	}

	switch o.Transport.Kind {
	case TransportStdio, TransportMQTT, TransportMCP:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", o.Transport.Kind))
	}

	return errors.Join(errs...)
}

// ShutdownBound returns the longest time Terminate can take.
func (o *Options) ShutdownBound() time.Duration {
	return o.PumpJoinTimeout + o.GracefulTimeout + o.KillTimeout
}
