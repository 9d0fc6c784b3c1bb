package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/llamabridge/internal/framer"
	"github.com/wagiedev/llamabridge/internal/prompt"
)

func TestDefault(t *testing.T) {
	opts := Default()

	require.Equal(t, "llama-cli", opts.Executable)
	require.Equal(t, 256, opts.MaxTokens)
	require.Equal(t, 4, opts.Threads)
	require.Equal(t, 100*time.Millisecond, opts.PollInterval)
	require.Equal(t, prompt.ChatML(), opts.Template)
	require.Equal(t, ">", opts.Marker)
	require.Equal(t, TransportStdio, opts.Transport.Kind)
	require.Equal(t, "audio_asr", opts.Transport.MQTT.RequestTopic)
	require.Equal(t, "llm_response", opts.Transport.MQTT.ResponseTopic)
	require.Equal(t, 11*time.Second, opts.ShutdownBound())
	require.Len(t, opts.Noise, len(framer.DefaultNoise))
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	opts := &Options{Model: "m.gguf", Transport: TransportOptions{Kind: "ros"}}
	opts.ApplyDefaults()

	require.Equal(t, "llama-cli", opts.Executable)
	require.Equal(t, DefaultGracefulTimeout, opts.GracefulTimeout)
	require.Equal(t, DefaultPlaceholder, opts.Placeholder)
	require.Equal(t, TransportMQTT, opts.Transport.Kind)
	require.Empty(t, opts.InitPrompt, "an empty init prompt means disabled")
	require.NoError(t, opts.Validate())
}

func TestValidate(t *testing.T) {
	opts := Default()
	opts.Executable = ""
	opts.MaxTokens = -1
	opts.Transport.Kind = "smoke-signal"
	opts.Transport.MQTT.QoS = 3

	err := opts.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "executable is required")
	require.Contains(t, err.Error(), "model is required")
	require.Contains(t, err.Error(), "max_tokens must be positive")
	require.Contains(t, err.Error(), "unknown transport")
	require.Contains(t, err.Error(), "qos")
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvExecutable, "")
	t.Setenv(EnvModel, "")

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executable: /opt/llama/llama-cli
model: /models/qwen.gguf
max_tokens: 128
poll_interval: 50ms
init_prompt: ""
template_preset: gemma
extra_noise:
  - pattern: "load_tensors:"
  - pattern: "exact line"
    kind: exact
journal:
  dir: /var/lib/llamabridge
transport:
  kind: bus
  mqtt:
    broker: mqtt://broker:1883
    qos: 0
`), 0o600))

	opts, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/opt/llama/llama-cli", opts.Executable)
	require.Equal(t, "/models/qwen.gguf", opts.Model)
	require.Equal(t, 128, opts.MaxTokens)
	require.Equal(t, 4, opts.Threads)
	require.Equal(t, 50*time.Millisecond, opts.PollInterval)
	require.Empty(t, opts.InitPrompt)
	require.Equal(t, "<start_of_turn>", opts.Template.TurnStart)
	require.True(t, opts.Noise.Match("load_tensors: offloading"))
	require.True(t, opts.Noise.Match("exact line"))
	require.True(t, opts.Noise.Match("build: 1234"))
	require.True(t, opts.Journal.Enabled())
	require.Equal(t, TransportMQTT, opts.Transport.Kind)
	require.Equal(t, "mqtt://broker:1883", opts.Transport.MQTT.Broker)
	require.Equal(t, "audio_asr", opts.Transport.MQTT.RequestTopic)
	require.Equal(t, byte(0), opts.Transport.MQTT.QoS)
}

func TestLoad_ExplicitTemplateWinsOverPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
template_preset: gemma
template:
  turn_start: "[S]"
  turn_end: "[E]"
  user_role: u
  assistant_role: a
`), 0o600))

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "[S]", opts.Template.TurnStart)
}

func TestLoad_UnknownPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("template_preset: nope\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown template preset")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvExecutable, "/env/llama-cli")
	t.Setenv(EnvModel, "/env/model.gguf")

	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/env/llama-cli", opts.Executable)
	require.Equal(t, "/env/model.gguf", opts.Model)
}

func TestTemplatePresets(t *testing.T) {
	require.Equal(t, []string{"chatml", "gemma", "llama3", "qwen"}, TemplatePresetNames())

	tmpl, ok := TemplatePreset("qwen")
	require.True(t, ok)
	require.Equal(t, prompt.ChatML(), tmpl)

	_, ok = TemplatePreset("unknown")
	require.False(t, ok)
}
