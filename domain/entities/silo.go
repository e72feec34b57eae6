package entities

import "time"

// SiloKind selects the isolation boundary hosting a component instance.
type SiloKind string

const (
	// SiloThread shares the host address space and isolates by capability.
	SiloThread SiloKind = "thread"
	// SiloProcess runs in a separate OS process.
	SiloProcess SiloKind = "process"
)

// SiloState is the lifecycle state of a silo.
type SiloState string

const (
	SiloCreated    SiloState = "created"
	SiloRunning    SiloState = "running"
	SiloSuspended  SiloState = "suspended"
	SiloTerminated SiloState = "terminated"
	SiloFailed     SiloState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s SiloState) IsTerminal() bool {
	return s == SiloTerminated || s == SiloFailed
}

// SiloInfo is a point-in-time snapshot of a silo.
type SiloInfo struct {
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	ID        string    `json:"id"`
	Kind      SiloKind  `json:"kind"`
	State     SiloState `json:"state"`
	Owner     string    `json:"owner"`
	Parent    string    `json:"parent,omitempty"`
	Function  string    `json:"function,omitempty"`
	Args      []string  `json:"args,omitempty"`
	Resources int       `json:"resources"`
	ExitCode  int       `json:"exit_code"`
}

// ThreadSpec asks for a component function to run in a new thread silo.
type ThreadSpec struct {
	Component string   `json:"component"`
	Function  string   `json:"function"`
	Args      []string `json:"args,omitempty"`
}

// ProcessSpec asks for a host command to run in a new process silo.
type ProcessSpec struct {
	Command string   `json:"command"`
	Dir     string   `json:"dir,omitempty"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}
