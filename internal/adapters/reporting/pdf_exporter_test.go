package reporting

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
)

func TestPDFExporterExport(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPDFExporter(dir)

	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	snapshot := ports.ReportSnapshot{
		StartedAt: started,
		EndedAt:   started.Add(2 * time.Hour),
		Mode:      domain.ModeAuto,
		Handshakes: []domain.Handshake{
			{APMac: "aa:bb:cc:dd:ee:ff", Filename: "x.pcap", CapturedAt: started.Add(time.Minute)},
		},
		Interactions: []domain.InteractionLogEntry{
			{BSSID: "aa:bb:cc:dd:ee:ff", Kind: "associate", At: started.Format(time.RFC3339), Outcome: "ok"},
		},
		FinalMood:  domain.MoodGrateful,
		LastReward: 0.42,
	}

	path, err := exporter.Export(context.Background(), snapshot)
	require.NoError(t, err)
	assert.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPDFExporterExportEmptySession(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPDFExporter(dir)

	_, err := exporter.Export(context.Background(), ports.ReportSnapshot{
		StartedAt: time.Now(),
	})
	assert.NoError(t, err)
}
