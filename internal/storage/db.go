// Package storage owns the engine's ambient SQL store — settings, the
// audit trail, and daily download statistics. It deliberately does NOT
// store task or segment state: that is pinned to the JSON files under
// "<download_dir>/.parts/" (spec §6), so a download survives a restart
// even if this database is lost or reset.
//
// Grounded on the teacher's internal/storage/models.go (AppSetting,
// DailyStat) using the same gorm + glebarez/sqlite stack; the teacher's
// badger-backed Task store that used to live in this file is dropped
// (see DESIGN.md) since task state belongs to internal/segment and
// internal/folder instead.
package storage

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Storage wraps a gorm.DB scoped to the engine's sqlite database.
type Storage struct {
	db *gorm.DB
}

// New opens (creating if absent) the sqlite database at path and
// migrates the ambient schema.
func New(path string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := db.AutoMigrate(&AppSetting{}, &DailyStat{}, &AuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetString returns the stored value for key, or "" if unset.
func (s *Storage) GetString(key string) (string, error) {
	var row AppSetting
	err := s.db.First(&row, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

// SetString upserts a key-value setting.
func (s *Storage) SetString(key, value string) error {
	return s.db.Save(&AppSetting{Key: key, Value: value}).Error
}

// RecordCompletion adds bytes/files to today's DailyStat row, creating it
// if this is the first completion of the day.
func (s *Storage) RecordCompletion(bytes int64) error {
	today := time.Now().Format("2006-01-02")
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row DailyStat
		err := tx.First(&row, "date = ?", today).Error
		if err == gorm.ErrRecordNotFound {
			row = DailyStat{Date: today}
		} else if err != nil {
			return err
		}
		row.Bytes += bytes
		row.Files++
		return tx.Save(&row).Error
	})
}

// DailyStats returns the most recently recorded days, newest first.
func (s *Storage) DailyStats(limit int) ([]DailyStat, error) {
	var rows []DailyStat
	err := s.db.Order("date desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// AppendAudit records one lifecycle event for taskID.
func (s *Storage) AppendAudit(taskID, action, details string) error {
	return s.db.Create(&AuditEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		TaskID:    taskID,
		Action:    action,
		Details:   details,
	}).Error
}

// RecentAudit returns the most recent audit entries, newest first.
func (s *Storage) RecentAudit(limit int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}
