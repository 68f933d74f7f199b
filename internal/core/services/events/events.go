// Package events implements the EventDemultiplexer: it drains the
// RadioController's raw event stream, parses each frame as JSON, and acts
// only on the one tag the core understands, wifi.client.handshake.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/core/services/session"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

const handshakeTag = "wifi.client.handshake"

// PcapCounter reports how many unique handshake captures exist on disk,
// normally backed by the pcap watcher adapter.
type PcapCounter interface {
	TotalHandshakes() int
}

// UINotifier receives the demultiplexer's side effects: a textual status
// line and a handshake count delta. Both methods must be safe to call from
// the demultiplexer's goroutine.
type UINotifier interface {
	SetText(key, value string)
	OnHandshakes(n int)
}

type noopNotifier struct{}

func (noopNotifier) SetText(key, value string) {}
func (noopNotifier) OnHandshakes(n int)         {}

// Demultiplexer drains RadioController.SubscribeEvents and applies the
// handshake side effects to SessionStore and Epoch.
type Demultiplexer struct {
	radio    ports.RadioController
	sessions *session.Store
	epoch    *epoch.Epoch
	pcaps    PcapCounter
	ui       UINotifier
	log      *slog.Logger
}

// New constructs a Demultiplexer. pcaps and ui may be nil; ui defaults to a
// no-op, pcaps defaults to always reporting zero.
func New(radio ports.RadioController, sessions *session.Store, e *epoch.Epoch, pcaps PcapCounter, ui UINotifier, log *slog.Logger) *Demultiplexer {
	if ui == nil {
		ui = noopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Demultiplexer{radio: radio, sessions: sessions, epoch: e, pcaps: pcaps, ui: ui, log: log}
}

// Run subscribes to the event stream and processes frames until ctx is done
// or the stream closes.
func (d *Demultiplexer) Run(ctx context.Context) error {
	frames, err := d.radio.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			d.handleFrame(frame)
		}
	}
}

type envelope struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type handshakeData struct {
	AP      string `json:"ap"`
	Station string `json:"station"`
	File    string `json:"file"`
}

func (d *Demultiplexer) handleFrame(frame string) {
	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		d.log.Error("failed to parse event", "error", err)
		return
	}
	telemetry.EventsTotal.WithLabelValues(env.Tag).Inc()
	if env.Tag != handshakeTag {
		return
	}

	var data handshakeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		d.log.Error("failed to parse handshake event data", "error", err)
		return
	}

	d.handleHandshake(data)
}

func (d *Demultiplexer) handleHandshake(data handshakeData) {
	apMAC := strings.ToLower(data.AP)
	staMAC := data.Station

	inserted := d.sessions.RecordHandshake(staMAC, apMAC, domain.Handshake{
		APMac:      apMAC,
		Filename:   data.File,
		CapturedAt: time.Now(),
	})
	if !inserted {
		d.log.Debug("handshake already exists", "station", staMAC, "ap", apMAC)
		return
	}

	telemetry.HandshakesTotal.Inc()
	lastPwned := d.resolveAndLog(staMAC, apMAC)
	d.sessions.SetLastPwned(lastPwned)

	total := 0
	if d.pcaps != nil {
		total = d.pcaps.TotalHandshakes()
	}
	count := len(d.sessions.GetSession().State.Handshakes)
	text := fmt.Sprintf("%d (%02d)", count, total)
	if lastPwned != "" {
		text += fmt.Sprintf(" [%s]", lastPwned)
	}

	d.epoch.Track(domain.ActivityHandshake, 1)
	d.ui.SetText("shakes", text)
	d.ui.OnHandshakes(1)
}

// resolveAndLog finds the AP/station pair in the current session snapshot to
// log a rich capture line and resolve a display hostname; falls back to the
// bare AP MAC when the pair isn't in the latest scan.
func (d *Demultiplexer) resolveAndLog(staMAC, apMAC string) string {
	snap := d.sessions.GetSession()
	for _, ap := range snap.State.AccessPoints {
		if !strings.EqualFold(ap.MAC, apMAC) {
			continue
		}
		for _, sta := range ap.Clients {
			if !strings.EqualFold(sta.MAC, staMAC) {
				continue
			}
			name := hostnameOrMAC(ap)
			d.log.Info("captured new handshake",
				"channel", ap.Channel, "rssi", ap.RSSI,
				"station", sta.MAC, "vendor", sta.Vendor,
				"ap", name, "ap_mac", ap.MAC)
			return name
		}
	}
	return apMAC
}

func hostnameOrMAC(ap domain.AccessPoint) string {
	if ap.Hostname != "" {
		return ap.Hostname
	}
	return ap.MAC
}
