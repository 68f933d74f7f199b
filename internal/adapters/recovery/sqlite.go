// Package recovery persists enough session state to resume an agent session
// across a process restart.
package recovery

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
)

// SQLiteStore implements ports.RecoveryStore using GORM and SQLite, with an
// auto-migrate-on-open, one-adapter-struct pattern.
type SQLiteStore struct {
	db *gorm.DB
}

// recoveryModel is the GORM row for domain.RecoveryRecord.
type recoveryModel struct {
	SessionID         string `gorm:"primaryKey"`
	StartedAt         string
	CurrentChannel    int
	Mode              string
	SupportedChannels string
	HandshakeCount    int
	LastPwned         string
	UpdatedAt         string
}

// interactionModel is the GORM row for domain.InteractionLogEntry.
type interactionModel struct {
	ID      uint `gorm:"primaryKey"`
	BSSID   string `gorm:"index"`
	Kind    string
	At      string
	Outcome string
}

// NewSQLiteStore opens (creating if needed) the recovery database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&recoveryModel{}, &interactionModel{}); err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &SQLiteStore{db: db}, nil
}

// Save upserts the RecoveryRecord for rec.SessionID.
func (s *SQLiteStore) Save(ctx context.Context, rec domain.RecoveryRecord) error {
	model := recoveryModel{
		SessionID:         rec.SessionID,
		StartedAt:         rec.StartedAt,
		CurrentChannel:    rec.CurrentChannel,
		Mode:              rec.Mode,
		SupportedChannels: rec.SupportedChannels,
		HandshakeCount:    rec.HandshakeCount,
		LastPwned:         rec.LastPwned,
		UpdatedAt:         rec.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

// Load returns the RecoveryRecord for sessionID if it exists and is younger
// than maxAge, or nil, nil otherwise.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string, maxAge time.Duration) (*domain.RecoveryRecord, error) {
	var model recoveryModel
	err := s.db.WithContext(ctx).First(&model, "session_id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updatedAt, err := time.Parse(time.RFC3339, model.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse recovery timestamp: %w", err)
	}
	if time.Since(updatedAt) > maxAge {
		return nil, nil
	}

	return &domain.RecoveryRecord{
		SessionID:         model.SessionID,
		StartedAt:         model.StartedAt,
		CurrentChannel:    model.CurrentChannel,
		Mode:              model.Mode,
		SupportedChannels: model.SupportedChannels,
		HandshakeCount:    model.HandshakeCount,
		LastPwned:         model.LastPwned,
		UpdatedAt:         model.UpdatedAt,
	}, nil
}

// LogInteraction appends one associate/deauth attempt for the session report.
func (s *SQLiteStore) LogInteraction(ctx context.Context, entry domain.InteractionLogEntry) error {
	model := interactionModel{
		BSSID:   entry.BSSID,
		Kind:    entry.Kind,
		At:      entry.At,
		Outcome: entry.Outcome,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ports.RecoveryStore = (*SQLiteStore)(nil)
