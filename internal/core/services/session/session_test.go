package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
)

func newTestSession() domain.Session {
	return domain.Session{
		StartedAt:         time.Now(),
		SupportedChannels: []int{1, 6, 11},
		Mode:              domain.ModeAuto,
		State:             domain.NewSessionState(),
	}
}

func TestGetSetSessionRoundTrip(t *testing.T) {
	s := New(newTestSession())
	next := newTestSession()
	next.State.CurrentChannel = 6
	s.SetSession(next)
	assert.Equal(t, 6, s.GetSession().State.CurrentChannel)
}

func TestSubscribeReceivesChange(t *testing.T) {
	s := New(newTestSession())
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	next := newTestSession()
	next.State.CurrentChannel = 11
	s.SetSession(next)

	select {
	case got := <-ch:
		assert.Equal(t, 11, got.State.CurrentChannel)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestApplyWhitelistFiltersOpenAndWhitelisted(t *testing.T) {
	aps := []domain.AccessPoint{
		{MAC: "AA:BB:CC:00:00:01", Channel: 6, Encryption: "WPA2"},
		{MAC: "AA:BB:CC:00:00:02", Channel: 1, Encryption: "OPEN"},
		{MAC: "AA:BB:CC:00:00:03", Channel: 11, Encryption: ""},
		{MAC: "AA:BB:CC:00:00:04", Hostname: "home-router", Channel: 3, Encryption: "WPA2"},
	}
	out := ApplyWhitelist(aps, []string{"home-router"})
	require.Len(t, out, 1)
	assert.Equal(t, "AA:BB:CC:00:00:01", out[0].MAC)
}

func TestApplyWhitelistSortsByChannelAscending(t *testing.T) {
	aps := []domain.AccessPoint{
		{MAC: "c", Channel: 11, Encryption: "WPA2"},
		{MAC: "a", Channel: 1, Encryption: "WPA2"},
		{MAC: "b", Channel: 6, Encryption: "WPA2"},
	}
	out := ApplyWhitelist(aps, nil)
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 6, 11}, []int{out[0].Channel, out[1].Channel, out[2].Channel})
}

func TestGroupByChannelOrdersByPopulationThenChannel(t *testing.T) {
	aps := []domain.AccessPoint{
		{MAC: "a", Channel: 1},
		{MAC: "b", Channel: 6},
		{MAC: "c", Channel: 6},
		{MAC: "d", Channel: 11},
		{MAC: "e", Channel: 11},
	}
	groups := GroupByChannel(aps, nil)
	require.Len(t, groups, 3)
	// channel 6 and 11 both have 2 APs; channel 6 sorts first (ascending id tiebreak).
	assert.Equal(t, 6, groups[0].Channel)
	assert.Equal(t, 11, groups[1].Channel)
	assert.Equal(t, 1, groups[2].Channel)
}

func TestGroupByChannelFiltersToConfiguredSet(t *testing.T) {
	aps := []domain.AccessPoint{
		{MAC: "a", Channel: 1},
		{MAC: "b", Channel: 6},
	}
	groups := GroupByChannel(aps, []int{6})
	require.Len(t, groups, 1)
	assert.Equal(t, 6, groups[0].Channel)
}

// TestScenarioS3InteractionGating mirrors spec scenario S3: with
// max_interactions=3, should_interact returns true, true, true, false...,
// and recording a handshake between the 2nd and 3rd call makes every call
// from that point on return false regardless of remaining budget.
func TestScenarioS3InteractionGating(t *testing.T) {
	s := New(newTestSession())
	const bssid = "AA:BB:CC:DD:EE:FF"

	assert.True(t, s.ShouldInteract(bssid, 3))
	assert.True(t, s.ShouldInteract(bssid, 3))

	s.RecordHandshake("11:22:33:44:55:66", bssid, domain.Handshake{APMac: bssid})

	assert.False(t, s.ShouldInteract(bssid, 3))
	assert.False(t, s.ShouldInteract(bssid, 3))
}

func TestShouldInteractExhaustsBudgetWithoutHandshake(t *testing.T) {
	s := New(newTestSession())
	const bssid = "11:11:11:11:11:11"

	assert.True(t, s.ShouldInteract(bssid, 2))
	assert.True(t, s.ShouldInteract(bssid, 2))
	assert.False(t, s.ShouldInteract(bssid, 2))
	assert.False(t, s.ShouldInteract(bssid, 2))
}

func TestRecordHandshakeIdempotent(t *testing.T) {
	s := New(newTestSession())
	hs := domain.Handshake{APMac: "AA:AA:AA:AA:AA:AA"}
	assert.True(t, s.RecordHandshake("sta", "ap", hs))
	assert.False(t, s.RecordHandshake("sta", "ap", hs))
}
