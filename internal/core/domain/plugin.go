package domain

// PluginState is a node in the PluginEntry lifecycle DAG:
// Registered -> Initialized -> (Disabled <-> Initialized) -> Unloaded, with
// any state able to transition to Failed.
type PluginState int

const (
	PluginRegistered PluginState = iota
	PluginInitialized
	PluginDisabled
	PluginFailed
	PluginUnloaded
)

func (s PluginState) String() string {
	switch s {
	case PluginRegistered:
		return "registered"
	case PluginInitialized:
		return "initialized"
	case PluginDisabled:
		return "disabled"
	case PluginFailed:
		return "failed"
	case PluginUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// PluginInfo is the self-description a plugin object returns from Info().
type PluginInfo struct {
	Name        string
	Version     string
	Author      string
	Description string
	License     string
}

// RecoveryRecord is a periodically checkpointed projection of SessionState,
// used to rehydrate channel/mode/handshake-count state after a restart.
// It is not part of the live Session/SessionState structs.
type RecoveryRecord struct {
	SessionID         string
	StartedAt         string
	CurrentChannel    int
	Mode              string
	SupportedChannels string // CSV
	HandshakeCount    int
	LastPwned         string
	UpdatedAt         string
}

// InteractionLogEntry records one associate/deauth attempt for the session
// report.
type InteractionLogEntry struct {
	BSSID   string
	Kind    string // "associate" | "deauth"
	At      string
	Outcome string
}
