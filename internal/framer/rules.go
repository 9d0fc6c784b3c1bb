package framer

import "strings"

// MatchKind selects how a Rule pattern is compared against a trimmed line.
type MatchKind string

const (
	// MatchPrefix matches lines that begin with the pattern.
	MatchPrefix MatchKind = "prefix"
	// MatchExact matches lines equal to the pattern.
	MatchExact MatchKind = "exact"
)

// Rule is one entry of a noise table.
type Rule struct {
	Pattern string    `yaml:"pattern"`
	Kind    MatchKind `yaml:"kind"`
}

// Prefix returns a prefix-match rule.
func Prefix(pattern string) Rule {
	return Rule{Pattern: pattern, Kind: MatchPrefix}
}

// Exact returns an exact-match rule.
func Exact(pattern string) Rule {
	return Rule{Pattern: pattern, Kind: MatchExact}
}

// Match reports whether the trimmed line is matched by the rule.
// An empty Kind behaves like MatchPrefix.
func (r Rule) Match(line string) bool {
	if r.Pattern == "" {
		return false
	}

	switch r.Kind {
	case MatchExact:
		return line == r.Pattern
	default:
		return strings.HasPrefix(line, r.Pattern)
	}
}

// Rules is an ordered noise table.
type Rules []Rule

// Match reports whether any rule matches the trimmed line.
func (rs Rules) Match(line string) bool {
	for _, r := range rs {
		if r.Match(line) {
			return true
		}
	}

	return false
}

// With returns a copy of rs extended with extra rules.
func (rs Rules) With(extra ...Rule) Rules {
	out := make(Rules, 0, len(rs)+len(extra))
	out = append(out, rs...)

	return append(out, extra...)
}

// DefaultNoise lists the llama-cli banner, timing, system-info, sampler and
// interactive-mode help lines that share stdout with generated text.
var DefaultNoise = Rules{
	Prefix("llama_perf_"),
	Prefix("build:"),
	Prefix("main:"),
	Prefix("gguf_init_from_file:"),
	Prefix("llama_model_load:"),
	Prefix("common_init_from_params:"),
	Prefix("Microseconds:"),
	Prefix("Prompt:"),
	Prefix("system_info:"),
	Prefix("sampler seed:"),
	Prefix("sampler params:"),
	Prefix("sampler chain:"),
	Prefix("generate:"),
	Prefix("== Running in interactive mode. =="),
	Prefix("- Press Ctrl+C"),
	Prefix("- Press Return"),
	Prefix("- To return control"),
	Prefix("- If you want to submit"),
	Prefix("- Not using system message."),
	Prefix("EOF by user"),
}

// DefaultStderrNoise lists stderr lines that are suppressed instead of being
// surfaced as warnings.
var DefaultStderrNoise = Rules{
	Prefix("[INFO]"),
}
