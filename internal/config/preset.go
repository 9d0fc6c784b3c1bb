package config

import (
	"sort"

	"github.com/wagiedev/llamabridge/internal/prompt"
)

// templatePresets are the chat templates of common instruct model families.
var templatePresets = map[string]prompt.Template{
	"chatml": prompt.ChatML(),
	"qwen":   prompt.ChatML(),
	"llama3": {
		TurnStart:     "<|start_header_id|>",
		TurnEnd:       "<|eot_id|>",
		UserRole:      "user<|end_header_id|>\n",
		AssistantRole: "assistant<|end_header_id|>\n",
	},
	"gemma": {
		TurnStart:     "<start_of_turn>",
		TurnEnd:       "<end_of_turn>",
		UserRole:      "user",
		AssistantRole: "model",
	},
}

// TemplatePreset returns the built-in template registered under name.
func TemplatePreset(name string) (prompt.Template, bool) {
	t, ok := templatePresets[name]

	return t, ok
}

// TemplatePresetNames returns the registered preset names in sorted order.
func TemplatePresetNames() []string {
	names := make([]string, 0, len(templatePresets))
	for name := range templatePresets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
