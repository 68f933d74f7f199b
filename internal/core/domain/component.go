package domain

// ComponentHealth is a process-level diagnostic snapshot for one
// ComponentSupervisor-managed component.
type ComponentHealth struct {
	Name      string
	State     string // "pending" | "initialized" | "running" | "stopped" | "failed"
	LastError string
}
