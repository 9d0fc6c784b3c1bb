// Package prompt wraps request text in the chat-turn template expected by
// the model running inside llama-cli.
package prompt

import "strings"

// Template describes the chat-turn delimiters of a model.
type Template struct {
	TurnStart     string `yaml:"turn_start"`
	TurnEnd       string `yaml:"turn_end"`
	UserRole      string `yaml:"user_role"`
	AssistantRole string `yaml:"assistant_role"`
}

// ChatML returns the ChatML template used by Qwen instruct models.
func ChatML() Template {
	return Template{
		TurnStart:     "<|im_start|>",
		TurnEnd:       "<|im_end|>",
		UserRole:      "user",
		AssistantRole: "assistant",
	}
}

// Wrap renders one user turn followed by the opening of the assistant turn.
// The result always ends with a newline.
func (t Template) Wrap(text string) string {
	var b strings.Builder

	b.Grow(len(text) + 64)
	b.WriteString(t.TurnStart)
	b.WriteString(t.UserRole)
	b.WriteByte('\n')
	b.WriteString(text)
	b.WriteString(t.TurnEnd)
	b.WriteByte('\n')
	b.WriteString(t.TurnStart)
	b.WriteString(t.AssistantRole)
	b.WriteByte('\n')

	return b.String()
}

// Delimiters returns the tokens that must never appear in a cleaned reply,
// longest first so role-qualified markers are removed before the bare
// turn-start marker.
func (t Template) Delimiters() []string {
	candidates := []string{
		t.TurnStart + t.AssistantRole,
		t.TurnStart + t.UserRole,
		t.TurnEnd,
		t.TurnStart,
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if c == "" {
			continue
		}

		if _, ok := seen[c]; ok {
			continue
		}

		seen[c] = struct{}{}
		out = append(out, c)
	}

	return out
}

// IsZero reports whether no delimiter is configured.
func (t Template) IsZero() bool {
	return t == Template{}
}
