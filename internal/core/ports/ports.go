// Package ports declares the interfaces core services depend on, so that
// concrete adapters (HTTP/WS radio client, GORM recovery store, PDF
// reporter) can be swapped without touching core/services.
package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
)

// SessionSnapshot is what RadioController.Session returns: the subset of the
// radio driver's session payload the core cares about.
type SessionSnapshot struct {
	AccessPoints []domain.AccessPoint
	Interfaces   []string
	Modules      map[string]bool
}

// CommandResult is the outcome of RadioController.Send.
type CommandResult struct {
	OK  bool
	Err error
}

// RadioController bridges to the external packet-capture daemon.
type RadioController interface {
	// Send enqueues a textual command and returns once it resolves.
	Send(ctx context.Context, cmd string) CommandResult
	// Session fetches and deserializes the current session snapshot. Returns
	// nil, nil on parse failure (logged by the implementation).
	Session(ctx context.Context) (*SessionSnapshot, error)
	// SubscribeEvents returns a channel of raw textual event frames. The
	// channel is closed when ctx is done.
	SubscribeEvents(ctx context.Context) (<-chan string, error)
	// Ready reports whether the event websocket is currently connected.
	Ready() bool
}

// RecoveryStore persists enough session state to resume after a restart.
type RecoveryStore interface {
	Save(ctx context.Context, rec domain.RecoveryRecord) error
	Load(ctx context.Context, sessionID string, maxAge time.Duration) (*domain.RecoveryRecord, error)
	LogInteraction(ctx context.Context, entry domain.InteractionLogEntry) error
	Close() error
}

// ReportExporter writes a human-readable session summary.
type ReportExporter interface {
	Export(ctx context.Context, snapshot ReportSnapshot) (path string, err error)
}

// ReportSnapshot is the data a ReportExporter needs; assembled at shutdown
// time by the process entrypoint from SessionStore, Epoch and MoodAutomaton.
type ReportSnapshot struct {
	StartedAt    time.Time
	EndedAt      time.Time
	Mode         domain.Mode
	Handshakes   []domain.Handshake
	Interactions []domain.InteractionLogEntry
	FinalMood    domain.Mood
	LastReward   float64
}

// Component is anything the ComponentSupervisor can order, init, start, and
// stop.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	// Start may run a long-lived background task; it returns once that task
	// is launched (it does not block until the task exits).
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
