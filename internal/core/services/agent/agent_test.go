package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/nightjar/internal/config"
	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/core/services/hooks"
	"github.com/lcalzada-xor/nightjar/internal/core/services/mood"
	"github.com/lcalzada-xor/nightjar/internal/core/services/session"
)

type fakeRadio struct {
	sentCommands []string
	nextResult   ports.CommandResult
	snapshot     *ports.SessionSnapshot
	snapshotErr  error
}

func (f *fakeRadio) Send(ctx context.Context, cmd string) ports.CommandResult {
	f.sentCommands = append(f.sentCommands, cmd)
	if f.nextResult == (ports.CommandResult{}) {
		return ports.CommandResult{OK: true}
	}
	return f.nextResult
}

func (f *fakeRadio) Session(ctx context.Context) (*ports.SessionSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeRadio) SubscribeEvents(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (f *fakeRadio) Ready() bool { return true }

type fakeRecorder struct {
	entries []domain.InteractionLogEntry
}

func (f *fakeRecorder) LogInteraction(ctx context.Context, entry domain.InteractionLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func newTestAgent(radio ports.RadioController) (*Agent, *epoch.Epoch, *session.Store) {
	cfg := config.Default()
	cfg.Main.Whitelist = []string{"ignored-ap"}
	e := epoch.New(25, 15, 20000)
	m := mood.New(e, mood.Thresholds{
		ExcitedNumEpochs:     uint32(cfg.Personality.ExcitedNumEpochs),
		BoredNumEpochs:       uint32(cfg.Personality.BoredNumEpochs),
		SadNumEpochs:         uint32(cfg.Personality.SadNumEpochs),
		MaxMissesForRecon:    uint32(cfg.Personality.MaxMissesForRecon),
		BondEncountersFactor: cfg.Personality.BondEncountersFactor,
	})
	store := session.New(domain.Session{SupportedChannels: []int{1, 6, 11}, State: domain.NewSessionState()})
	a := New(cfg, radio, e, m, store, hooks.New(), nil)
	return a, e, store
}

func TestReconClearsChannelsWhenNoneConfigured(t *testing.T) {
	radio := &fakeRadio{}
	a, _, store := newTestAgent(radio)

	err := a.Recon(context.Background())
	require.NoError(t, err)
	assert.Contains(t, radio.sentCommands, "wifi.recon.channel clear")
	assert.Equal(t, 0, store.GetSession().State.CurrentChannel)
}

func TestReconStretchesDurationWhenInactive(t *testing.T) {
	radio := &fakeRadio{}
	a, e, _ := newTestAgent(radio)
	a.cfg.Personality.Channels = []int{1, 6}
	a.cfg.Personality.ReconTime = 1
	a.cfg.Personality.MaxInactiveScale = 0
	a.cfg.Personality.ReconInactiveMultiplier = 3

	require.NoError(t, a.Recon(context.Background()))
	// recon_time(1) * recon_inactive_multiplier(3), tracked as Activity::Sleep.
	assert.Equal(t, uint32(3), e.Snapshot().NumSlept)
}

func TestSetChannelSkipsWhenStale(t *testing.T) {
	radio := &fakeRadio{}
	a, e, store := newTestAgent(radio)
	e.Track(domain.ActivityMiss, uint32(a.cfg.Personality.MaxMissesForRecon)+1)

	a.SetChannel(context.Background(), 6)
	assert.Empty(t, radio.sentCommands)
	assert.Equal(t, 0, store.GetSession().State.CurrentChannel)
}

func TestSetChannelSkipsWhenAlreadyCurrent(t *testing.T) {
	radio := &fakeRadio{}
	a, _, store := newTestAgent(radio)
	store.SetCurrentChannel(6)

	a.SetChannel(context.Background(), 6)
	assert.Empty(t, radio.sentCommands)
}

func TestSetChannelSwitchesAndTracksHop(t *testing.T) {
	radio := &fakeRadio{}
	a, e, store := newTestAgent(radio)

	a.SetChannel(context.Background(), 6)
	assert.Contains(t, radio.sentCommands, "wifi.recon.channel 6")
	assert.Equal(t, 6, store.GetSession().State.CurrentChannel)
	assert.Equal(t, uint32(1), e.Snapshot().NumHops)
}

func TestAssociateSuccessTracksActivity(t *testing.T) {
	radio := &fakeRadio{nextResult: ports.CommandResult{OK: true}}
	a, e, _ := newTestAgent(radio)

	ap := domain.AccessPoint{MAC: "AA:BB:CC:00:00:01", Encryption: "WPA2"}
	a.Associate(context.Background(), ap, ptrF(0))
	assert.Equal(t, uint32(1), e.Snapshot().NumAssocs)
	assert.Contains(t, radio.sentCommands, "wifi.assoc AA:BB:CC:00:00:01")
}

func TestAssociateErrorIsMissWhenUnknownBSSID(t *testing.T) {
	radio := &fakeRadio{nextResult: ports.CommandResult{OK: false, Err: errors.New("target is an unknown BSSID")}}
	a, e, _ := newTestAgent(radio)

	ap := domain.AccessPoint{MAC: "AA:BB:CC:00:00:02", Encryption: "WPA2"}
	a.Associate(context.Background(), ap, ptrF(0))
	assert.Equal(t, uint32(1), e.Snapshot().NumMissed)
	assert.Equal(t, uint32(0), e.Snapshot().NumAssocs)
}

func TestDeauthSuccessTracksActivity(t *testing.T) {
	radio := &fakeRadio{nextResult: ports.CommandResult{OK: true}}
	a, e, _ := newTestAgent(radio)

	ap := domain.AccessPoint{MAC: "AA:BB:CC:00:00:03", Encryption: "WPA2"}
	sta := domain.Station{MAC: "11:22:33:44:55:66"}
	a.Deauth(context.Background(), ap, sta, ptrF(0))
	assert.Equal(t, uint32(1), e.Snapshot().NumDeauths)
	assert.Contains(t, radio.sentCommands, "wifi.deauth 11:22:33:44:55:66")
}

func TestAssociateRecordsInteraction(t *testing.T) {
	radio := &fakeRadio{nextResult: ports.CommandResult{OK: true}}
	a, _, _ := newTestAgent(radio)
	rec := &fakeRecorder{}
	a.SetInteractionRecorder(rec)

	ap := domain.AccessPoint{MAC: "AA:BB:CC:00:00:04", Encryption: "WPA2"}
	a.Associate(context.Background(), ap, ptrF(0))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "AA:BB:CC:00:00:04", rec.entries[0].BSSID)
	assert.Equal(t, "associate", rec.entries[0].Kind)
	assert.Equal(t, "ok", rec.entries[0].Outcome)
}

func TestDeauthRecordsFailedInteraction(t *testing.T) {
	radio := &fakeRadio{nextResult: ports.CommandResult{OK: false, Err: errors.New("target is an unknown BSSID")}}
	a, _, _ := newTestAgent(radio)
	rec := &fakeRecorder{}
	a.SetInteractionRecorder(rec)

	ap := domain.AccessPoint{MAC: "AA:BB:CC:00:00:05", Encryption: "WPA2"}
	sta := domain.Station{MAC: "11:22:33:44:55:77"}
	a.Deauth(context.Background(), ap, sta, ptrF(0))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "AA:BB:CC:00:00:05", rec.entries[0].BSSID)
	assert.Equal(t, "deauth", rec.entries[0].Kind)
	assert.Equal(t, "failed", rec.entries[0].Outcome)
}

func TestGetAccessPointsFiltersOpenAndWhitelisted(t *testing.T) {
	radio := &fakeRadio{snapshot: &ports.SessionSnapshot{
		AccessPoints: []domain.AccessPoint{
			{MAC: "a", Channel: 6, Encryption: "WPA2"},
			{MAC: "b", Channel: 1, Encryption: "OPEN"},
			{Hostname: "ignored-ap", MAC: "c", Channel: 3, Encryption: "WPA2"},
		},
	}}
	a, _, store := newTestAgent(radio)

	out, err := a.GetAccessPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].MAC)
	assert.Equal(t, out, store.GetSession().State.AccessPoints)
}

func TestGetAccessPointsByChannelGroupsAndOrders(t *testing.T) {
	radio := &fakeRadio{snapshot: &ports.SessionSnapshot{
		AccessPoints: []domain.AccessPoint{
			{MAC: "a", Channel: 1, Encryption: "WPA2"},
			{MAC: "b", Channel: 6, Encryption: "WPA2"},
			{MAC: "c", Channel: 6, Encryption: "WPA2"},
		},
	}}
	a, _, _ := newTestAgent(radio)

	groups, err := a.GetAccessPointsByChannel(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 6, groups[0].Channel)
	assert.Equal(t, 1, groups[1].Channel)
}

func ptrF(f float64) *float64 { return &f }
