// Package store persists ingested alerts in SQLite. The unique index on the
// identity hash is the authoritative dedup mechanism: two attempts to insert
// the same alert can never both succeed, with no application-level
// check-then-act window.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
)

// alertRow is the persisted shape of a domain.Alert. Geographic codes are
// stored comma-joined to keep the schema flat.
type alertRow struct {
	ID           uint   `gorm:"primaryKey"`
	AlertID      string `gorm:"uniqueIndex;not null"`
	Title        string `gorm:"not null"`
	Event        string
	Details      string
	Description  string
	Expires      string
	ExpiresUTC   int64 `gorm:"index"`
	URL          string
	APIURL       string
	FIPSCodes    string
	UGCCodes     string
	CreatedBatch int64 `gorm:"index"`
}

func (alertRow) TableName() string { return "alerts" }

// Store is the durable keyed collection of alerts. Single-writer by
// deployment convention; WAL mode keeps concurrent readers unblocked.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the alerts table. The file is opened in write-ahead-log mode with a busy
// timeout so a reader never stalls the writer indefinitely.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&alertRow{}); err != nil {
		return nil, fmt.Errorf("migrate alerts table: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertIfAbsent stores the alert unless a row with the same identity hash
// already exists. Reports whether a row was inserted. Existing rows are
// never overwritten: upstream fields are immutable once stored.
func (s *Store) InsertIfAbsent(ctx context.Context, alert domain.Alert) (bool, error) {
	row := toRow(alert)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "alert_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert alert %s: %w", alert.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SelectByBatch returns every alert first inserted under the given run
// identifier, in insertion order.
func (s *Store) SelectByBatch(ctx context.Context, batch int64) ([]domain.Alert, error) {
	var rows []alertRow
	if err := s.db.WithContext(ctx).
		Where("created_batch = ?", batch).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select batch %d: %w", batch, err)
	}

	alerts := make([]domain.Alert, len(rows))
	for i, row := range rows {
		alerts[i] = toAlert(row)
	}
	return alerts, nil
}

// DeleteExpired removes alerts whose expiry falls before the given UTC epoch
// and reports how many were removed. Alerts with no known expiry
// (expires_utc = 0) are kept; a missing date is not evidence of expiry.
func (s *Store) DeleteExpired(ctx context.Context, beforeEpoch int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_utc > 0 AND expires_utc < ?", beforeEpoch).
		Delete(&alertRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll removes every stored alert (full purge) and reports the count.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&alertRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// IDs lists the identity hashes of every stored alert. Used to decide which
// rendered artifacts are still live.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&alertRow{}).
		Pluck("alert_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list alert ids: %w", err)
	}
	return ids, nil
}

// Count reports the number of stored alerts.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&alertRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Vacuum compacts the database file. Run on its own long cadence by the
// scheduler, never during a fetch run.
func (s *Store) Vacuum(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("vacuum database: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(a domain.Alert) alertRow {
	return alertRow{
		AlertID:      a.ID,
		Title:        a.Title,
		Event:        a.Event,
		Details:      a.Details,
		Description:  a.Description,
		Expires:      a.Expires,
		ExpiresUTC:   a.ExpiresUTC,
		URL:          a.URL,
		APIURL:       a.APIURL,
		FIPSCodes:    strings.Join(a.FIPSCodes, ","),
		UGCCodes:     strings.Join(a.UGCCodes, ","),
		CreatedBatch: a.CreatedBatch,
	}
}

func toAlert(r alertRow) domain.Alert {
	return domain.Alert{
		ID:           r.AlertID,
		Title:        r.Title,
		Event:        r.Event,
		Details:      r.Details,
		Description:  r.Description,
		Expires:      r.Expires,
		ExpiresUTC:   r.ExpiresUTC,
		URL:          r.URL,
		APIURL:       r.APIURL,
		FIPSCodes:    splitCodes(r.FIPSCodes),
		UGCCodes:     splitCodes(r.UGCCodes),
		CreatedBatch: r.CreatedBatch,
	}
}

func splitCodes(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
