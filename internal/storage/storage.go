// Package storage records verification run history using GORM and SQLite.
package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilRun   = errors.New("run record cannot be nil")
	ErrNotFound = errors.New("run record not found")
)

// Run modes.
const (
	ModeNormal  = "normal"
	ModeVerbose = "verbose"
)

// RunRecord is the audit trail entry for one verification run. Records are
// append-only; the service never reads them back to answer evidence queries.
type RunRecord struct {
	ID uint `gorm:"primaryKey"`

	// What ran
	Mode      string `gorm:"not null;index:idx_mode"`
	WheelsDir string `gorm:"not null"`
	Binary    string `gorm:"not null"`

	// How it went
	StartedAt  time.Time `gorm:"not null;index:idx_started"`
	DurationMS int64     `gorm:"not null"`
	ExitCode   int       `gorm:"not null;default:0"`
	Succeeded  bool      `gorm:"not null;default:false"`

	// Coverage summary, zero for verbose runs and failures
	VerifiedCount    int
	TotalCount       int
	OverallCoverage  float64
	ArtifactCoverage float64
	FullCoverage     bool `gorm:"not null;default:false"`

	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for run history operations
type Store interface {
	Close() error
	RecordRun(*RunRecord) error
	GetRun(id uint) (*RunRecord, error)
	LastRun(mode string) (*RunRecord, error)
	ListRuns(limit int) ([]*RunRecord, error)
	GetStats() (map[string]interface{}, error)
}

// DB wraps gorm.DB with our run history operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordRun creates a new run record
func (d *DB) RecordRun(run *RunRecord) error {
	if run == nil {
		return ErrNilRun
	}
	if err := d.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRun retrieves a run record by ID
func (d *DB) GetRun(id uint) (*RunRecord, error) {
	var run RunRecord
	err := d.db.First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return &run, nil
}

// LastRun retrieves the most recently started run of the given mode
func (d *DB) LastRun(mode string) (*RunRecord, error) {
	var run RunRecord
	err := d.db.Where("mode = ?", mode).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s run: %w", mode, err)
	}
	return &run, nil
}

// ListRuns retrieves run records ordered newest first. A limit <= 0 returns
// all records.
func (d *DB) ListRuns(limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	q := d.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetStats returns aggregate statistics over the run history
func (d *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := d.db.Model(&RunRecord{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	stats["total_runs"] = total

	var succeeded int64
	if err := d.db.Model(&RunRecord{}).Where("succeeded = ?", true).Count(&succeeded).Error; err != nil {
		return nil, fmt.Errorf("failed to count successful runs: %w", err)
	}
	stats["successful_runs"] = succeeded

	var fullCoverage int64
	if err := d.db.Model(&RunRecord{}).Where("full_coverage = ?", true).Count(&fullCoverage).Error; err != nil {
		return nil, fmt.Errorf("failed to count full coverage runs: %w", err)
	}
	stats["full_coverage_runs"] = fullCoverage

	byMode := make(map[string]int64)
	rows, err := d.db.Model(&RunRecord{}).
		Select("mode, COUNT(*) as count").
		Group("mode").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to group runs by mode: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var count int64
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, fmt.Errorf("failed to scan mode stats: %w", err)
		}
		byMode[mode] = count
	}
	stats["runs_by_mode"] = byMode

	return stats, nil
}
