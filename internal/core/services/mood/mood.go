// Package mood implements the MoodAutomaton: a pure state machine observing
// Epoch and transitioning through {starting, ready, normal, bored, sad,
// angry, lonely, grateful, excited}.
package mood

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

var allMoods = []domain.Mood{
	domain.MoodStarting, domain.MoodReady, domain.MoodNormal, domain.MoodExcited,
	domain.MoodBored, domain.MoodSad, domain.MoodAngry, domain.MoodLonely, domain.MoodGrateful,
}

// Thresholds bundles the personality config values the automaton consults.
type Thresholds struct {
	ExcitedNumEpochs     uint32
	BoredNumEpochs       uint32
	SadNumEpochs         uint32
	MaxMissesForRecon    uint32
	BondEncountersFactor int
}

// Automaton drives mood transitions off an Epoch.
type Automaton struct {
	epoch      *epoch.Epoch
	thresholds Thresholds

	mu    sync.Mutex
	state domain.Mood
}

// New constructs an Automaton starting in MoodStarting.
func New(e *epoch.Epoch, t Thresholds) *Automaton {
	return &Automaton{epoch: e, thresholds: t, state: domain.MoodStarting}
}

// State returns the current mood.
func (a *Automaton) State() domain.Mood {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Automaton) set(m domain.Mood) {
	a.mu.Lock()
	a.state = m
	a.mu.Unlock()

	for _, candidate := range allMoods {
		value := 0.0
		if candidate == m {
			value = 1.0
		}
		telemetry.MoodState.WithLabelValues(candidate.String()).Set(value)
	}
}

// SetReady transitions to MoodReady; called once after startup.
func (a *Automaton) SetReady() {
	a.set(domain.MoodReady)
}

// IsStale reports whether the current tick has missed more interactions than
// the configured threshold.
func (a *Automaton) IsStale() bool {
	return a.epoch.Snapshot().NumMissed > a.thresholds.MaxMissesForRecon
}

// InGoodMood reports whether the unit currently has a strong support
// network (factor 1.0).
func (a *Automaton) InGoodMood() bool {
	return a.hasSupportNetworkFor(a.epoch.Snapshot().NumPeers, 1.0)
}

// WaitFor tracks a sleep activity of the given duration on the Epoch, then
// blocks for that duration or until ctx is done, whichever comes first.
func (a *Automaton) WaitFor(ctx context.Context, d time.Duration) {
	a.epoch.Track(domain.ActivitySleep, uint32(d.Seconds()))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// OnMiss records a missed interaction and tracks it on the Epoch.
func (a *Automaton) OnMiss() {
	a.epoch.Track(domain.ActivityMiss, 1)
}

// OnError records an error from an associate/deauth attempt; if the message
// contains the literal "is an unknown BSSID" token, it is also treated as a miss.
func (a *Automaton) OnError(errMsg string) {
	if containsUnknownBSSID(errMsg) {
		a.OnMiss()
	}
}

func containsUnknownBSSID(msg string) bool {
	const needle = "is an unknown BSSID"
	return indexOf(msg, needle) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// hasSupportNetworkFor reports whether the unit's peer bonding is strong
// enough to redirect a negative mood to grateful, given numPeers peers seen
// during the tick being judged.
func (a *Automaton) hasSupportNetworkFor(numPeers uint32, factor float32) bool {
	total := float64(numPeers)
	if total <= 0 {
		return false
	}
	bondFactor := float64(a.thresholds.BondEncountersFactor)
	return bondFactor/total >= float64(factor)
}

// NextEpoch advances the Epoch and recomputes mood, following the original
// transition order: stale -> sad -> bored -> excited -> grateful, each
// negative branch redirected to grateful when a support network exists.
func (a *Automaton) NextEpoch() {
	wasStale := a.IsStale()
	before := a.epoch.Snapshot()
	missedBeforeNext := before.NumMissed
	// Next() zeroes NumPeers, so the support-network check uses this tick's count.
	peersBeforeNext := before.NumPeers

	data := a.epoch.Next()

	switch {
	case wasStale:
		factor := float64(missedBeforeNext) / float64(a.thresholds.MaxMissesForRecon)
		if factor >= 2.0 {
			a.transitionNegative(domain.MoodAngry, peersBeforeNext, float32(factor))
		} else {
			a.transitionNegative(domain.MoodLonely, peersBeforeNext, 1.0)
		}
	case data.SadFor > 0:
		decisionFactor := float64(data.SadFor) / float64(a.thresholds.SadNumEpochs)
		if decisionFactor >= 2.0 {
			a.transitionNegative(domain.MoodAngry, peersBeforeNext, float32(decisionFactor))
		} else {
			// set_sad's own support-network check uses inactive_for, not sad_for.
			sadFactor := float64(data.InactiveFor) / float64(a.thresholds.SadNumEpochs)
			a.transitionNegative(domain.MoodSad, peersBeforeNext, float32(sadFactor))
		}
	case data.BoredFor > 0:
		factor := float64(data.InactiveFor) / float64(a.thresholds.BoredNumEpochs)
		a.transitionNegative(domain.MoodBored, peersBeforeNext, float32(factor))
	case data.ActiveFor >= a.thresholds.ExcitedNumEpochs:
		a.set(domain.MoodExcited)
	case data.ActiveFor >= 5 && a.hasSupportNetworkFor(peersBeforeNext, 5.0):
		a.set(domain.MoodGrateful)
	default:
		a.set(domain.MoodNormal)
	}

	a.checkBlindness()
}

// transitionNegative redirects to grateful when a support network covers the
// given factor, otherwise commits to the negative mood.
func (a *Automaton) transitionNegative(negative domain.Mood, numPeers uint32, factor float32) {
	if a.hasSupportNetworkFor(numPeers, factor) {
		a.set(domain.MoodGrateful)
		return
	}
	a.set(negative)
}

// checkBlindness logs and resets the blind counter when five consecutive
// ticks saw zero visible APs. The original's restart action is commented
// out; current behavior (log, reset, continue) is preserved.
func (a *Automaton) checkBlindness() {
	if blindFor := a.epoch.Snapshot().BlindFor; blindFor >= 5 {
		slog.Error("blindness watchdog: no access points visible", "blind_for", blindFor)
		a.epoch.ResetBlindFor()
	}
}
