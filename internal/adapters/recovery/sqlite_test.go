package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
)

func TestSQLiteStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	rec := domain.RecoveryRecord{
		SessionID:         "sess-1",
		StartedAt:         time.Now().Format(time.RFC3339),
		CurrentChannel:    6,
		Mode:              "auto",
		SupportedChannels: "1,6,11",
		HandshakeCount:    2,
		LastPwned:         "home-ap",
		UpdatedAt:         time.Now().Format(time.RFC3339),
	}

	require.NoError(t, store.Save(context.Background(), rec))

	got, err := store.Load(context.Background(), "sess-1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)
}

func TestSQLiteStoreLoadStaleIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	rec := domain.RecoveryRecord{
		SessionID: "sess-stale",
		UpdatedAt: time.Now().Add(-2 * time.Hour).Format(time.RFC3339),
	}
	require.NoError(t, store.Save(context.Background(), rec))

	got, err := store.Load(context.Background(), "sess-stale", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load(context.Background(), "nope", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}
