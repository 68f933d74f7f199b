// Package session holds the single running Session behind a
// reader/writer lock and applies the AP whitelist and interaction-gating
// policy the Agent consults every cycle.
package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
)

// Store is a concurrency-safe holder of the current Session, with
// change-notification fan-out for subscribers (the UI, reporting).
type Store struct {
	mu      sync.RWMutex
	session domain.Session

	subMu sync.Mutex
	subs  []chan domain.Session
}

// New constructs a Store seeded with the given Session.
func New(initial domain.Session) *Store {
	return &Store{session: initial}
}

// GetSession returns a copy of the current session.
func (s *Store) GetSession() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SetSession atomically replaces the session and broadcasts the change to
// every subscriber. A full subscriber channel is skipped, not blocked on.
func (s *Store) SetSession(next domain.Session) {
	s.mu.Lock()
	s.session = next
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- next:
		default:
		}
	}
}

// Subscribe registers a new change-notification channel. The returned
// function unregisters it.
func (s *Store) Subscribe() (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, unsubscribe
}

// ApplyWhitelist filters aps down to those that are encrypted and whose MAC
// or hostname is not in the (case-insensitive) whitelist, then sorts the
// survivors by channel ascending. It does not mutate the Store.
func ApplyWhitelist(aps []domain.AccessPoint, whitelist []string) []domain.AccessPoint {
	wl := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		wl[strings.ToLower(w)] = true
	}

	out := make([]domain.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		if ap.Open() {
			continue
		}
		if wl[strings.ToLower(ap.MAC)] || wl[strings.ToLower(ap.Hostname)] {
			continue
		}
		out = append(out, ap)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// GroupByChannel partitions aps into channel buckets and orders the groups
// by descending population, then ascending channel id. If channels is
// non-empty, only those channel ids are considered.
func GroupByChannel(aps []domain.AccessPoint, channels []int) []ChannelGroup {
	allowed := map[int]bool{}
	for _, c := range channels {
		allowed[c] = true
	}
	filterChannels := len(channels) > 0

	byChan := map[int][]domain.AccessPoint{}
	for _, ap := range aps {
		if filterChannels && !allowed[ap.Channel] {
			continue
		}
		byChan[ap.Channel] = append(byChan[ap.Channel], ap)
	}

	groups := make([]ChannelGroup, 0, len(byChan))
	for ch, list := range byChan {
		groups = append(groups, ChannelGroup{Channel: ch, AccessPoints: list})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].AccessPoints) != len(groups[j].AccessPoints) {
			return len(groups[i].AccessPoints) > len(groups[j].AccessPoints)
		}
		return groups[i].Channel < groups[j].Channel
	})
	return groups
}

// ChannelGroup is one channel's AP population, as produced by GroupByChannel.
type ChannelGroup struct {
	Channel      int
	AccessPoints []domain.AccessPoint
}

// ShouldInteract implements the interaction-gating policy: once a handshake
// is recorded for bssid, it always returns false; otherwise it increments
// the per-BSSID history counter and allows up to maxInteractions attempts.
// Mutates the Store's session state under its write lock.
func (s *Store) ShouldInteract(bssid string, maxInteractions int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, hs := range s.session.State.Handshakes {
		if hs.APMac == bssid {
			return false
		}
	}

	count, existed := s.session.State.History[bssid]
	count++
	s.session.State.History[bssid] = count
	if !existed {
		return true
	}
	return count <= maxInteractions
}

// RecordHandshake installs a handshake under its canonical dedup key,
// reporting whether it was newly recorded (false if already present).
func (s *Store) RecordHandshake(station, ap string, hs domain.Handshake) bool {
	key := domain.HandshakeKey(station, ap)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.session.State.Handshakes[key]; exists {
		return false
	}
	s.session.State.Handshakes[key] = hs
	s.session.State.LastPwned = hs.APMac
	return true
}

// SetLastPwned overrides the display name recorded for the most recent
// handshake, e.g. once the demultiplexer has resolved a hostname for it.
func (s *Store) SetLastPwned(name string) {
	s.mu.Lock()
	s.session.State.LastPwned = name
	s.mu.Unlock()
}

// SetAccessPoints installs a freshly filtered/sorted AP list.
func (s *Store) SetAccessPoints(aps []domain.AccessPoint) {
	s.mu.Lock()
	s.session.State.AccessPoints = aps
	s.mu.Unlock()
}

// SetPeers installs the latest mesh-peer list, as reported by the (external)
// mesh-peer advertiser. A nil/empty list means no peers are currently known.
func (s *Store) SetPeers(peers []domain.Peer) {
	s.mu.Lock()
	s.session.State.Peers = peers
	s.mu.Unlock()
}

// SetCurrentChannel records the channel the radio is now tuned to.
func (s *Store) SetCurrentChannel(ch int) {
	s.mu.Lock()
	s.session.State.CurrentChannel = ch
	s.mu.Unlock()
}
