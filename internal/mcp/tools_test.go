package mcp

import (
	"encoding/json"
	"testing"

	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func TestStringSchema(t *testing.T) {
	schema := StringSchema(map[string]string{"text": "request", "lang": "language"})

	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"lang", "text"}, schema.Required)
	require.Equal(t, "string", schema.Properties["text"].Type)
	require.Equal(t, "request", schema.Properties["text"].Description)

	empty := StringSchema(nil)
	require.Equal(t, "object", empty.Type)
	require.Empty(t, empty.Properties)
}

func TestResultHelpers(t *testing.T) {
	text := TextResult("0x02")
	require.False(t, text.IsError)
	require.Equal(t, "0x02", text.Content[0].(*mcpgo.TextContent).Text)

	errResult := ErrorResult("boom")
	require.True(t, errResult.IsError)

	tool := NewTool("prompt", "desc", StringSchema(map[string]string{"text": "request"}))
	require.Equal(t, "prompt", tool.Name)
	require.Equal(t, "desc", tool.Description)
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(nil)
	require.NoError(t, err)
	require.Empty(t, args)

	args, err = ParseArguments(&mcpgo.CallToolRequest{
		Params: &mcpgo.CallToolParamsRaw{Arguments: json.RawMessage(`{"text":"hi"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, "hi", args["text"])

	_, err = ParseArguments(&mcpgo.CallToolRequest{
		Params: &mcpgo.CallToolParamsRaw{Arguments: json.RawMessage(`{bad`)},
	})
	require.Error(t, err)
}
