package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvExecutable = "LLAMABRIDGE_EXECUTABLE"
	EnvModel      = "LLAMABRIDGE_MODEL"
)

// Load reads a YAML config file on top of the defaults.
//
// An empty path skips the file and returns the defaults with environment
// overrides applied. ExtraNoise from the file is appended to the default
// noise table; a template_preset is resolved unless an explicit template is
// given.
func Load(path string) (*Options, error) {
	opts := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := Parse(data, opts); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnv(opts)
	opts.ApplyDefaults()

	return opts, nil
}

// Parse decodes YAML into opts, keeping values the document does not set.
func Parse(data []byte, opts *Options) error {
	// Decode the template separately so a preset is not shadowed by the
	// ChatML default already present in opts.
	var probe struct {
		Template *yamlNode `yaml:"template"`
	}

	if err := yaml.Unmarshal(data, &probe); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, opts); err != nil {
		return err
	}

	if opts.TemplatePreset != "" && probe.Template == nil {
		t, ok := TemplatePreset(opts.TemplatePreset)
		if !ok {
			return fmt.Errorf("unknown template preset %q (known: %v)", opts.TemplatePreset, TemplatePresetNames())
		}

		opts.Template = t
	}

	if len(opts.ExtraNoise) > 0 {
		opts.Noise = opts.Noise.With(opts.ExtraNoise...)
	}

	return nil
}

// yamlNode only records that a key was present.
type yamlNode struct{}

func (*yamlNode) UnmarshalYAML(*yaml.Node) error { return nil }

// ApplyEnv overrides executable and model from the environment.
func ApplyEnv(opts *Options) {
	if v := os.Getenv(EnvExecutable); v != "" {
		opts.Executable = v
	}

	if v := os.Getenv(EnvModel); v != "" {
		opts.Model = v
	}
}
