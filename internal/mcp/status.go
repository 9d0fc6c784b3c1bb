package mcp

// Status is the process state reported by the status tool.
type Status struct {
	Alive      bool   `json:"alive"`
	PID        int    `json:"pid,omitempty"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending"`
}

// StatusFunc reports the current process state.
type StatusFunc func() Status
