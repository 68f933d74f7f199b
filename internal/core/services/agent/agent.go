// Package agent implements the auto-mode orchestration loop: recon, channel
// hop, associate, deauth, then advance the mood automaton — once per cycle,
// forever, until the supervisor cancels the context.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/lcalzada-xor/nightjar/internal/config"
	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/core/services/hooks"
	"github.com/lcalzada-xor/nightjar/internal/core/services/mood"
	"github.com/lcalzada-xor/nightjar/internal/core/services/session"
)

// InteractionRecorder persists one associate/deauth attempt for the session
// report; normally backed by the recovery store. Errors are logged by the
// implementation and never propagate back into the Agent loop.
type InteractionRecorder interface {
	LogInteraction(ctx context.Context, entry domain.InteractionLogEntry) error
}

// Agent is the orchestrator: it reads SessionStore, issues commands through
// RadioController, and records interaction attempts in Epoch.
type Agent struct {
	cfg      *config.Config
	radio    ports.RadioController
	epoch    *epoch.Epoch
	mood     *mood.Automaton
	sessions *session.Store
	hooks    *hooks.Registry
	log      *slog.Logger
	recorder InteractionRecorder
}

// New constructs an Agent. hooks may be nil, in which case every call site
// is a direct call with no wrapping overhead.
func New(cfg *config.Config, radio ports.RadioController, e *epoch.Epoch, m *mood.Automaton, sessions *session.Store, h *hooks.Registry, log *slog.Logger) *Agent {
	if h == nil {
		h = hooks.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Agent{cfg: cfg, radio: radio, epoch: e, mood: m, sessions: sessions, hooks: h, log: log}
}

// SetInteractionRecorder wires a recorder that every subsequent Associate/
// Deauth attempt reports to. Optional: a nil recorder (the default) simply
// skips persistence.
func (a *Agent) SetInteractionRecorder(r InteractionRecorder) {
	a.recorder = r
}

func (a *Agent) recordInteraction(ctx context.Context, bssid, kind string, ok bool) {
	if a.recorder == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	entry := domain.InteractionLogEntry{
		BSSID:   bssid,
		Kind:    kind,
		At:      time.Now().Format(time.RFC3339),
		Outcome: outcome,
	}
	if err := a.recorder.LogInteraction(ctx, entry); err != nil {
		a.log.Warn("failed to persist interaction log entry", "bssid", bssid, "kind", kind, "error", err)
	}
}

// RunAuto is the auto-mode control loop: recon, group APs by channel, hop
// into each, associate then deauth every client, and close the epoch — one
// cycle, forever, until ctx is done.
func (a *Agent) RunAuto(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := a.runCycle(ctx); err != nil {
			return err
		}
	}
}

// runCycle runs one full recon->hop->associate->deauth cycle, wrapped in a
// single span so a trace backend can show cycle duration and boundaries.
func (a *Agent) runCycle(ctx context.Context) error {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.cycle")
	defer span.End()

	if err := a.Recon(ctx); err != nil {
		a.log.Warn("recon failed", "error", err)
	}

	groups, err := a.GetAccessPointsByChannel(ctx)
	if err != nil {
		a.log.Warn("get_access_points_by_channel failed", "error", err)
	}

	for _, group := range groups {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.mood.WaitFor(ctx, time.Second)
		a.SetChannel(ctx, group.Channel)

		for _, ap := range group.AccessPoints {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.Associate(ctx, ap, nil)
			for _, sta := range ap.Clients {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.Deauth(ctx, ap, sta, nil)
				a.mood.WaitFor(ctx, time.Second)
			}
		}
	}

	a.mood.NextEpoch()
	return nil
}

// Recon chooses a recon duration (stretched by recon_inactive_multiplier
// when the unit has been inactive for max_inactive_scale epochs or more),
// issues the channel filter command, and blocks for that duration.
func (a *Agent) Recon(ctx context.Context) error {
	var reconErr error
	a.wrapped("Agent::recon", nil, func(hooks.HookArgs) {
		p := a.cfg.Personality
		reconTime := p.ReconTime
		if int(a.epoch.Snapshot().InactiveFor) >= p.MaxInactiveScale {
			reconTime *= p.ReconInactiveMultiplier
		}

		if len(p.Channels) == 0 {
			a.sessions.SetCurrentChannel(0)
			if res := a.radio.Send(ctx, "wifi.recon.channel clear"); !res.OK {
				reconErr = res.Err
				return
			}
		} else {
			channelStr := dedupChannelsCSV(p.Channels)
			if res := a.radio.Send(ctx, "wifi.recon.channel "+channelStr); !res.OK {
				reconErr = res.Err
				return
			}
		}

		a.mood.WaitFor(ctx, time.Duration(reconTime)*time.Second)
	})
	return reconErr
}

// wrapped runs fn through the hook-registry call-site transform for site.
func (a *Agent) wrapped(site string, args hooks.HookArgs, fn func(hooks.HookArgs)) {
	a.hooks.Invoke(site, args, func(ha hooks.HookArgs) hooks.HookReturn {
		fn(ha)
		return hooks.HookReturn{}
	})
}

func dedupChannelsCSV(channels []int) string {
	seen := map[int]bool{}
	parts := make([]string, 0, len(channels))
	for _, c := range channels {
		if seen[c] {
			continue
		}
		seen[c] = true
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, ",")
}

// SetChannel tunes the radio driver to ch, waiting a personality-dependent
// grace period first if the last tick deauthed or associated. A no-op if
// the mood automaton considers the current tick stale, or ch is already the
// current channel.
func (a *Agent) SetChannel(ctx context.Context, ch int) {
	a.wrapped("Agent::set_channel", hooks.HookArgs{hooks.Capture(ch)}, func(args hooks.HookArgs) {
		ch, _ := hooks.Get[int](args[0])

		if a.mood.IsStale() {
			a.log.Debug("recon is stale, skipping channel switch", "channel", ch)
			return
		}

		snap := a.epoch.Snapshot()
		wait := 0
		if snap.DidDeauth {
			wait = a.cfg.Personality.HopReconTime
		} else if snap.DidAssociate {
			wait = a.cfg.Personality.MinReconTime
		}

		current := a.sessions.GetSession().State.CurrentChannel
		if ch == current {
			return
		}
		if current != 0 && wait > 0 {
			a.mood.WaitFor(ctx, time.Duration(wait)*time.Second)
		}

		res := a.radio.Send(ctx, fmt.Sprintf("wifi.recon.channel %d", ch))
		if !res.OK {
			a.log.Error("failed to switch channel", "channel", ch, "error", res.Err)
			return
		}

		a.sessions.SetCurrentChannel(ch)
		a.epoch.Track(domain.ActivityHop, 1)
		a.log.Info("switched channel", "channel", ch)
	})
}

// Associate attempts to associate with ap, subject to the whitelist/
// interaction-gating policy. throttle, if non-nil, overrides the
// personality's throttle_a sleep after the attempt.
func (a *Agent) Associate(ctx context.Context, ap domain.AccessPoint, throttle *float64) {
	a.wrapped("Agent::associate", hooks.HookArgs{hooks.Capture(ap)}, func(args hooks.HookArgs) {
		ap, _ := hooks.Get[domain.AccessPoint](args[0])

		if a.mood.IsStale() {
			a.log.Debug("recon is stale, skipping association", "mac", ap.MAC)
			return
		}

		if throttle == nil && !mathIsNaN(a.cfg.Personality.ThrottleA) {
			t := a.cfg.Personality.ThrottleA
			throttle = &t
		}

		if !a.cfg.Personality.Associate || !a.sessions.ShouldInteract(ap.MAC, a.cfg.Personality.MaxInteractions) {
			return
		}

		a.log.Info("sending association frame", "mac", ap.MAC, "hostname", ap.Hostname, "channel", ap.Channel, "clients", len(ap.Clients), "rssi", ap.RSSI)

		res := a.radio.Send(ctx, "wifi.assoc "+ap.MAC)
		if res.OK {
			a.log.Info("associated", "mac", ap.MAC, "hostname", ap.Hostname, "channel", ap.Channel)
			a.epoch.Track(domain.ActivityAssociation, 1)
		} else {
			a.onInteractionError(ap, res.Err)
		}
		a.recordInteraction(ctx, ap.MAC, "associate", res.OK)

		if throttle != nil {
			a.mood.WaitFor(ctx, time.Duration(*throttle*float64(time.Second)))
		}
	})
}

// Deauth attempts to deauthenticate sta from ap, symmetric to Associate.
func (a *Agent) Deauth(ctx context.Context, ap domain.AccessPoint, sta domain.Station, throttle *float64) {
	a.wrapped("Agent::deauth", hooks.HookArgs{hooks.Capture(ap), hooks.Capture(sta)}, func(args hooks.HookArgs) {
		ap, _ := hooks.Get[domain.AccessPoint](args[0])
		sta, _ := hooks.Get[domain.Station](args[1])

		if a.mood.IsStale() {
			a.log.Debug("recon is stale, skipping deauth", "mac", sta.MAC)
			return
		}

		if throttle == nil && !mathIsNaN(a.cfg.Personality.ThrottleD) {
			t := a.cfg.Personality.ThrottleD
			throttle = &t
		}

		if !a.cfg.Personality.Deauth || !a.sessions.ShouldInteract(sta.MAC, a.cfg.Personality.MaxInteractions) {
			return
		}

		a.log.Info("deauthing", "ap", ap.MAC, "hostname", ap.Hostname, "channel", ap.Channel, "clients", len(ap.Clients), "rssi", ap.RSSI)

		res := a.radio.Send(ctx, "wifi.deauth "+sta.MAC)
		if res.OK {
			a.log.Info("deauthenticated", "sta", sta.MAC, "hostname", ap.Hostname, "channel", ap.Channel)
			a.epoch.Track(domain.ActivityDeauth, 1)
		} else {
			a.onInteractionError(ap, res.Err)
		}
		a.recordInteraction(ctx, ap.MAC, "deauth", res.OK)

		if throttle != nil {
			a.mood.WaitFor(ctx, time.Duration(*throttle*float64(time.Second)))
		}
	})
}

func (a *Agent) onInteractionError(ap domain.AccessPoint, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.log.Error("interaction error", "mac", ap.MAC, "error", msg)
	a.mood.OnError(msg)
}

// GetAccessPoints fetches a fresh session snapshot from the radio driver,
// filters it through the whitelist/encryption policy, sorts by channel,
// installs it into SessionStore, and returns it.
func (a *Agent) GetAccessPoints(ctx context.Context) ([]domain.AccessPoint, error) {
	snap, err := a.radio.Session(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		a.epoch.Observe(len(a.cfg.Personality.Channels), nil, 0)
		a.sessions.SetAccessPoints(nil)
		return nil, nil
	}

	filtered := session.ApplyWhitelist(snap.AccessPoints, a.cfg.Main.Whitelist)
	a.epoch.Observe(len(a.cfg.Personality.Channels), filtered, len(a.sessions.GetSession().State.Peers))
	a.sessions.SetAccessPoints(filtered)
	return filtered, nil
}

// GetAccessPointsByChannel groups the latest AP snapshot by channel,
// restricted to the configured channel set if non-empty, ordered by
// descending population then ascending channel id.
func (a *Agent) GetAccessPointsByChannel(ctx context.Context) ([]session.ChannelGroup, error) {
	aps, err := a.GetAccessPoints(ctx)
	if err != nil {
		return nil, err
	}
	return session.GroupByChannel(aps, a.cfg.Personality.Channels), nil
}

func mathIsNaN(f float64) bool { return f != f }
