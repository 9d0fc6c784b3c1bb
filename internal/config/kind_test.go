package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTransportKind(t *testing.T) {
	require.Equal(t, "stdio", NormalizeTransportKind(""))
	require.Equal(t, "stdio", NormalizeTransportKind("console"))
	require.Equal(t, "mqtt", NormalizeTransportKind("ROS"))
	require.Equal(t, "mqtt", NormalizeTransportKind(" bus "))
	require.Equal(t, "mcp", NormalizeTransportKind("tool"))
	require.Equal(t, "mcp", NormalizeTransportKind("mcp"))
	require.Equal(t, "carrier-pigeon", NormalizeTransportKind("carrier-pigeon"))
}
