package domain

type StatusKind string

const (
	StatusReady    StatusKind = "ready"
	StatusDegraded StatusKind = "degraded"
	StatusStopped  StatusKind = "stopped"
)

// Status is the engine-level state shown to the user.
type Status struct {
	Kind   StatusKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}
