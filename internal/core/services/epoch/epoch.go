// Package epoch implements the time-bucketed tick engine that aggregates the
// Agent's effects into discrete epochs and computes a reward signal.
package epoch

import (
	"context"
	"sync"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

const nozero = 1e-20

// numChannels is the constant used by the reward formula's channel-hop term;
// it is independent of how many channels a given deployment actually
// supports (NUM_CHANNELS in the original agent, the full 2.4/5GHz channel
// space, not the configured subset).
const numChannels = 233

// Epoch is a mutex-protected tick counter plus derived aggregates. It is
// safe for concurrent use.
type Epoch struct {
	mu sync.Mutex

	epoch uint64

	inactiveFor uint32
	activeFor   uint32
	blindFor    uint32
	sadFor      uint32
	boredFor    uint32

	didDeauth     bool
	numDeauths    uint32
	didAssociate  bool
	numAssocs     uint32
	numMissed     uint32
	didHandshakes bool
	numHandshakes uint32
	numHops       uint32
	numSlept      uint32
	numPeers      uint32
	anyActivity   bool

	epochStart time.Time
	lastReward float64

	sadThreshold   uint32
	boredThreshold uint32
	bondFactor     int

	obsCh  chan domain.Observation
	dataCh chan domain.EpochData
}

// New constructs an Epoch. sadThreshold/boredThreshold are the personality
// config's sad_num_epochs/bored_num_epochs; bondFactor is
// bond_encounters_factor.
func New(sadThreshold, boredThreshold uint32, bondFactor int) *Epoch {
	return &Epoch{
		epochStart:     time.Now(),
		sadThreshold:   sadThreshold,
		boredThreshold: boredThreshold,
		bondFactor:     bondFactor,
		obsCh:          make(chan domain.Observation, 1),
		dataCh:         make(chan domain.EpochData, 1),
	}
}

// Observe computes the current AP/station/peer histograms and bond-factor
// aggregates, emitting the result on a 1-slot channel (drop-on-full).
func (e *Epoch) Observe(numSupportedChannels int, aps []domain.AccessPoint, numPeers int) domain.Observation {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(aps) == 0 {
		e.blindFor++
	} else {
		e.blindFor = 0
	}

	if numSupportedChannels <= 0 {
		numSupportedChannels = numChannels
	}

	var totalBond float32
	for _, ap := range aps {
		bf := float32(ap.RSSI) / float32(e.bondFactor)
		if bf < 0 {
			bf = 0
		}
		totalBond += bf
	}
	numAPsF := float32(len(aps)) + 1e-10
	avgBond := float32(0)
	if len(aps) > 0 {
		avgBond = totalBond / float32(len(aps))
	}

	apsPerChan := make([]float32, numSupportedChannels)
	staPerChan := make([]float32, numSupportedChannels)
	peersPerChan := make([]float32, numSupportedChannels)

	var totalSTA float32
	for _, ap := range aps {
		idx := ap.Channel - 1
		if idx >= 0 && idx < numSupportedChannels {
			apsPerChan[idx]++
			staPerChan[idx] += float32(len(ap.Clients))
		}
		totalSTA += float32(len(ap.Clients))
	}
	numSTAF := totalSTA/numAPsF + 1e-10

	for i := range apsPerChan {
		apsPerChan[i] /= numAPsF
		staPerChan[i] /= numSTAF
	}
	// peersPerChan is left zeroed: per-channel peer placement comes from the
	// mesh-peer advertiser, out of scope here; only the peer count is tracked.

	e.numPeers = uint32(numPeers)

	obs := domain.Observation{
		APsPerChannel:   apsPerChan,
		STAPerChannel:   staPerChan,
		PeersPerChannel: peersPerChan,
		NumPeers:        numPeers,
		BondFactorTotal: totalBond,
		BondFactorAvg:   avgBond,
	}

	select {
	case e.obsCh <- obs:
	default:
	}
	return obs
}

// Track records one unit (or increment units) of activity for the current
// epoch.
func (e *Epoch) Track(activity domain.Activity, increment uint32) {
	if increment == 0 {
		increment = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch activity {
	case domain.ActivityDeauth:
		e.didDeauth = true
		e.numDeauths += increment
		e.anyActivity = true
	case domain.ActivityAssociation:
		e.didAssociate = true
		e.numAssocs += increment
		e.anyActivity = true
	case domain.ActivityMiss:
		e.numMissed += increment
	case domain.ActivityHop:
		e.numHops += increment
		e.didDeauth = false
		e.didAssociate = false
	case domain.ActivityHandshake:
		e.numHandshakes += increment
		e.didHandshakes = true
	case domain.ActivitySleep:
		e.numSlept += increment
	}
}

// Next closes the current epoch, computes its reward, emits an EpochData
// record, and resets per-epoch state.
func (e *Epoch) Next() domain.EpochData {
	e.mu.Lock()

	if !e.anyActivity && !e.didHandshakes {
		e.inactiveFor++
		e.activeFor = 0
	} else {
		e.activeFor++
		e.inactiveFor = 0
		e.sadFor = 0
		e.boredFor = 0
	}

	if e.inactiveFor >= e.sadThreshold {
		e.boredFor = 0
		e.sadFor++
	} else if e.inactiveFor >= e.boredThreshold {
		e.sadFor = 0
		e.boredFor++
	} else {
		e.sadFor = 0
		e.boredFor = 0
	}

	now := time.Now()
	duration := now.Sub(e.epochStart)

	data := domain.EpochData{
		Epoch:         e.epoch,
		InactiveFor:   e.inactiveFor,
		ActiveFor:     e.activeFor,
		BlindFor:      e.blindFor,
		SadFor:        e.sadFor,
		BoredFor:      e.boredFor,
		NumDeauths:    e.numDeauths,
		NumAssocs:     e.numAssocs,
		NumMissed:     e.numMissed,
		NumHandshakes: e.numHandshakes,
		NumHops:       e.numHops,
		NumSlept:      e.numSlept,
		NumPeers:      e.numPeers,
		DidDeauth:     e.didDeauth,
		DidAssociate:  e.didAssociate,
		DidHandshakes: e.didHandshakes,
		AnyActivity:   e.anyActivity,
		EpochStart:    e.epochStart,
		EpochDuration: duration,
	}
	data.Reward = ComputeReward(e.epoch, data)
	e.lastReward = data.Reward

	e.epoch++
	e.epochStart = now
	e.didDeauth = false
	e.numDeauths = 0
	e.numPeers = 0
	e.didAssociate = false
	e.numAssocs = 0
	e.numMissed = 0
	e.didHandshakes = false
	e.numHandshakes = 0
	e.numHops = 0
	e.numSlept = 0
	e.anyActivity = false

	e.mu.Unlock()

	telemetry.EpochReward.Set(data.Reward)
	telemetry.EpochNumber.Set(float64(data.Epoch))

	select {
	case e.dataCh <- data:
	default:
	}
	return data
}

// WaitForEpochData blocks until the next EpochData is available or ctx is
// done / timeout elapses.
func (e *Epoch) WaitForEpochData(ctx context.Context, timeout time.Duration) (domain.EpochData, bool) {
	if timeout <= 0 {
		select {
		case d := <-e.dataCh:
			return d, true
		case <-ctx.Done():
			return domain.EpochData{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-e.dataCh:
		return d, true
	case <-timer.C:
		return domain.EpochData{}, false
	case <-ctx.Done():
		return domain.EpochData{}, false
	}
}

// ComputeReward is the pure reward function: deterministic, bounded, with a
// 1e-20 floor to avoid division by zero.
func ComputeReward(epoch uint64, d domain.EpochData) float64 {
	totEpochs := float64(epoch) + nozero
	totInteract := maxF(float64(d.NumDeauths)+float64(d.NumAssocs), float64(d.NumHandshakes)) + nozero
	totChannels := float64(numChannels)

	hs := float64(d.NumHandshakes) / totInteract
	active := 0.2 * (float64(d.ActiveFor) / totEpochs)
	hops := 0.1 * (float64(d.NumHops) / totChannels)

	blind := -0.3 * (float64(d.BlindFor) / totEpochs)
	missed := -0.3 * (float64(d.NumMissed) / totInteract)
	inactive := -0.2 * (float64(d.InactiveFor) / totEpochs)

	sad := 0.0
	if d.SadFor >= 5 {
		sad = float64(d.SadFor)
	}
	bored := 0.0
	if d.BoredFor >= 5 {
		bored = float64(d.BoredFor)
	}
	sadTerm := -0.2 * (sad / totEpochs)
	boredTerm := -0.1 * (bored / totEpochs)

	return hs + active + hops + blind + missed + inactive + sadTerm + boredTerm
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ResetBlindFor clears the consecutive-blind-epoch counter; called by the
// blindness watchdog after it has logged the condition.
func (e *Epoch) ResetBlindFor() {
	e.mu.Lock()
	e.blindFor = 0
	e.mu.Unlock()
}

// Snapshot returns the live counters without advancing the epoch, for
// MoodAutomaton and reporting to read.
func (e *Epoch) Snapshot() domain.EpochData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.EpochData{
		Epoch:         e.epoch,
		InactiveFor:   e.inactiveFor,
		ActiveFor:     e.activeFor,
		BlindFor:      e.blindFor,
		SadFor:        e.sadFor,
		BoredFor:      e.boredFor,
		NumDeauths:    e.numDeauths,
		NumAssocs:     e.numAssocs,
		NumMissed:     e.numMissed,
		NumHandshakes: e.numHandshakes,
		NumHops:       e.numHops,
		NumSlept:      e.numSlept,
		NumPeers:      e.numPeers,
		DidDeauth:     e.didDeauth,
		DidAssociate:  e.didAssociate,
		DidHandshakes: e.didHandshakes,
		AnyActivity:   e.anyActivity,
		EpochStart:    e.epochStart,
		Reward:        e.lastReward,
	}
}
