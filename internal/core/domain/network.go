package domain

import "time"

// Station is a WiFi client associated with an AccessPoint.
//
// Stations are snapshot objects: the Agent never mutates one in place. A new
// session snapshot from the radio driver replaces the whole slice.
type Station struct {
	MAC      string
	Hostname string
	Vendor   string
	RSSI     int
}

// AccessPoint is a WiFi base station identified by its MAC (BSSID).
//
// Invariant: any AccessPoint the Agent interacts with has Encryption set to
// something other than "" or "OPEN" (see SessionStore's whitelist filter).
type AccessPoint struct {
	MAC        string
	Hostname   string
	Channel    int
	RSSI       int
	Encryption string
	Clients    []Station
}

// Open reports whether the AP is unencrypted and therefore not a valid
// interaction target.
func (a AccessPoint) Open() bool {
	return a.Encryption == "" || a.Encryption == "OPEN"
}

// Handshake is a captured WPA four-way-handshake record.
type Handshake struct {
	APMac      string
	Filename   string
	CapturedAt time.Time
}

// HandshakeKey returns the canonical dedup key for a station/AP pair:
// lowercase, "<station> -> <ap>", no trailing space.
func HandshakeKey(station, ap string) string {
	return lower(station) + " -> " + lower(ap)
}

func lower(mac string) string {
	b := []byte(mac)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Mode is the operating mode of a Session.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
	ModeAI
	ModeCustom
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	case ModeAI:
		return "ai"
	case ModeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Peer is one other unit encountered via the mesh-peer advertiser (itself
// out of scope here; this module only holds and counts what it reports).
type Peer struct {
	SessionID   string
	FirstMet    time.Time
	LastSeen    time.Time
	Encounters  uint32
	LastChannel int
	RSSI        int
}

// SessionState is the live, mutable state of the current Session.
//
// CurrentChannel == 0 means "all/scanning". Handshakes keys are globally
// unique within one session (see HandshakeKey). History counts interaction
// attempts per BSSID.
type SessionState struct {
	CurrentChannel int
	AccessPoints   []AccessPoint
	Peers          []Peer
	History        map[string]int
	Handshakes     map[string]Handshake
	LastPwned      string
}

// NewSessionState returns a zeroed, ready-to-use SessionState.
func NewSessionState() SessionState {
	return SessionState{
		History:    make(map[string]int),
		Handshakes: make(map[string]Handshake),
	}
}

// Session is the top-level record of one running agent session. Exactly one
// Session exists at a time; it is replaced atomically on mode change.
type Session struct {
	StartedAt         time.Time
	SupportedChannels []int
	Mode              Mode
	State             SessionState
}
