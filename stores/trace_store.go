package stores

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LinkTrace records one state transition of a streaming link.
type LinkTrace struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	CreatedAt time.Time `json:"-"`
	UserID    string    `gorm:"index:idx_trace_user;not null" json:"user_id"`
	SessionID string    `gorm:"index" json:"session_id,omitempty"`
	From      string    `gorm:"not null" json:"from"`
	To        string    `gorm:"not null" json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Mode      string    `json:"mode"`
	Timestamp int64     `gorm:"index:idx_trace_user;not null" json:"timestamp"` // unix ms
}

// TraceStore interface for link trace persistence
type TraceStore interface {
	// SaveTrace saves a single transition
	SaveTrace(trace *LinkTrace) error

	// GetTracesByUser retrieves the transitions recorded for a user, oldest first
	GetTracesByUser(userID string, limit int) ([]*LinkTrace, error)

	// DeleteTracesBefore removes transitions older than the cutoff
	DeleteTracesBefore(cutoff time.Time) error
}

// GORMTraceStore implements TraceStore for SQLite/PostgreSQL via GORM
type GORMTraceStore struct {
	db *gorm.DB
}

// NewGORMTraceStore creates a trace store from an existing GORM database connection
func NewGORMTraceStore(db *gorm.DB) (*GORMTraceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	if err := db.AutoMigrate(&LinkTrace{}); err != nil {
		return nil, fmt.Errorf("failed to migrate link_traces table: %w", err)
	}

	return &GORMTraceStore{db: db}, nil
}

// SaveTrace saves a single transition
func (s *GORMTraceStore) SaveTrace(trace *LinkTrace) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if trace.Timestamp == 0 {
		trace.Timestamp = time.Now().UnixMilli()
	}
	return s.db.Create(trace).Error
}

// GetTracesByUser retrieves transitions for a user ordered by timestamp (0 = all)
func (s *GORMTraceStore) GetTracesByUser(userID string, limit int) ([]*LinkTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var traces []*LinkTrace
	query := s.db.Where("user_id = ?", userID).Order("timestamp ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&traces).Error
	return traces, err
}

// DeleteTracesBefore removes transitions recorded before cutoff
func (s *GORMTraceStore) DeleteTracesBefore(cutoff time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Where("timestamp < ?", cutoff.UnixMilli()).Delete(&LinkTrace{}).Error
}
