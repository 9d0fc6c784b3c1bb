package config

import "strings"

// Transport kinds.
const (
	TransportStdio = "stdio"
	TransportMQTT  = "mqtt"
	TransportMCP   = "mcp"
)

// NormalizeTransportKind maps transport aliases to their canonical names.
//
// Alias mappings:
//   - "" and "console" -> "stdio"
//   - "bus", "ros" and "pubsub" -> "mqtt"
//   - "tool" -> "mcp"
func NormalizeTransportKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "", "console":
		return TransportStdio
	case "bus", "ros", "pubsub":
		return TransportMQTT
	case "tool":
		return TransportMCP
	default:
		return k
	}
}
