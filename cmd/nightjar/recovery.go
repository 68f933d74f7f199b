package main

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/core/services/session"
)

// recoveryService bridges the SessionStore/Epoch pair to a ports.RecoveryStore:
// it seeds SessionStore from a prior run on startup and checkpoints a
// RecoveryRecord once per closed epoch, off the Agent's hot path.
type recoveryService struct {
	store     ports.RecoveryStore
	sessions  *session.Store
	epoch     *epoch.Epoch
	sessionID string
	maxAge    time.Duration
	log       *slog.Logger
}

// seed rehydrates CurrentChannel/LastPwned from a recent persisted record, if
// one exists and isn't older than maxAge. A failed or missing lookup leaves
// SessionStore at its zero state; recovery is a resume convenience, not a
// requirement.
func (r *recoveryService) seed(ctx context.Context) {
	rec, err := r.store.Load(ctx, r.sessionID, r.maxAge)
	if err != nil {
		r.log.Warn("recovery lookup failed", "error", err)
		return
	}
	if rec == nil {
		return
	}

	r.sessions.SetCurrentChannel(rec.CurrentChannel)
	r.sessions.SetLastPwned(rec.LastPwned)
	r.log.Info("resumed prior session", "session_id", rec.SessionID, "channel", rec.CurrentChannel, "handshakes", rec.HandshakeCount)
}

// checkpointLoop persists one RecoveryRecord per closed epoch until ctx is
// done. A save failure is logged at warn and skipped for that cycle; it never
// reaches the Agent loop.
func (r *recoveryService) checkpointLoop(ctx context.Context) {
	for {
		data, ok := r.epoch.WaitForEpochData(ctx, 0)
		if !ok {
			return
		}

		snap := r.sessions.GetSession()
		rec := domain.RecoveryRecord{
			SessionID:         r.sessionID,
			StartedAt:         snap.StartedAt.Format(time.RFC3339),
			CurrentChannel:    snap.State.CurrentChannel,
			Mode:              snap.Mode.String(),
			SupportedChannels: channelsToCSV(snap.SupportedChannels),
			HandshakeCount:    len(snap.State.Handshakes),
			LastPwned:         snap.State.LastPwned,
			UpdatedAt:         time.Now().Format(time.RFC3339),
		}

		if err := r.store.Save(ctx, rec); err != nil {
			r.log.Warn("recovery checkpoint failed", "epoch", data.Epoch, "error", err)
		}
	}
}

func channelsToCSV(channels []int) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = strconv.Itoa(ch)
	}
	return strings.Join(parts, ",")
}
