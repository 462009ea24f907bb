// Package audit logs AS-RTM decision and transition events to a gorm-backed
// SQLite database, independent of the solver's own correctness. It replaces
// the teacher's in-memory PolicyEngine.auditLogs slice with a durable store,
// following the same Repository-over-gorm.DB shape as internal/database.
package audit

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one row of the audit trail.
type Entry struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	EventType string    `gorm:"index"` // configuration_applied, configuration_rejected, cluster_switch, constraint_added, constraint_removed, state_changed
	StateName string
	Details   string // free-form human-readable detail, never the OP payload itself
}

// Log appends decision and transition events to a SQLite-backed table.
type Log struct {
	db *gorm.DB
}

// Open connects to (and migrates) the audit database at path.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: failed to connect to %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: failed to migrate schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close releases the underlying database connection.
func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends one audit entry, stamping its own timestamp.
func (l *Log) Record(eventType, stateName, details string) error {
	entry := Entry{
		Timestamp: time.Now(),
		EventType: eventType,
		StateName: stateName,
		Details:   details,
	}
	return l.db.Create(&entry).Error
}

// Recent returns the most recent n entries, newest first. n <= 0 means no limit.
func (l *Log) Recent(n int) ([]Entry, error) {
	var entries []Entry
	q := l.db.Order("timestamp DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// ForState returns every entry recorded against a given state name, oldest first.
func (l *Log) ForState(stateName string) ([]Entry, error) {
	var entries []Entry
	err := l.db.Where("state_name = ?", stateName).Order("timestamp ASC").Find(&entries).Error
	return entries, err
}

const (
	EventConfigurationApplied  = "configuration_applied"
	EventConfigurationRejected = "configuration_rejected"
	EventClusterSwitch         = "cluster_switch"
	EventConstraintAdded       = "constraint_added"
	EventConstraintRemoved     = "constraint_removed"
	EventStateChanged          = "state_changed"
)
