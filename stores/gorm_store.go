package stores

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// gormStore holds the queries shared by the SQLite and PostgreSQL stores.
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) migrate() error {
	if err := s.db.AutoMigrate(&Identity{}, &TranscriptEntry{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// DB returns the underlying GORM connection
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *gormStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *gormStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// LoadIdentity returns the identity stored for host, or nil when none exists yet
func (s *gormStore) LoadIdentity(host string) (*Identity, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var ident Identity
	err := s.db.Where("host = ?", host).First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity for %s: %w", host, err)
	}
	return &ident, nil
}

// SaveIdentity creates or updates the user id remembered for host
func (s *gormStore) SaveIdentity(host, userID string) (*Identity, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	existing, err := s.LoadIdentity(host)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		ident := &Identity{Host: host, UserID: userID}
		if err := s.db.Create(ident).Error; err != nil {
			return nil, fmt.Errorf("failed to create identity record: %w", err)
		}
		return ident, nil
	}

	if existing.UserID != userID {
		// A different user invalidates the remembered session.
		existing.UserID = userID
		existing.SessionID = ""
		if err := s.db.Save(existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update identity record: %w", err)
		}
	}
	return existing, nil
}

// SaveSessionID remembers the last server-assigned session id for host
func (s *gormStore) SaveSessionID(host, sessionID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	res := s.db.Model(&Identity{}).Where("host = ?", host).Update("session_id", sessionID)
	if res.Error != nil {
		return fmt.Errorf("failed to save session id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("Warning: no identity recorded for %s; session id %s not saved", host, sessionID)
	}
	return nil
}

// SaveTurn appends a completed text unit to the transcript of sessionID
func (s *gormStore) SaveTurn(sessionID, role, unitID, text string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&TranscriptEntry{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count transcript entries: %w", err)
		}

		entry := TranscriptEntry{
			SessionID: sessionID,
			Sequence:  int(count) + 1,
			Role:      role,
			UnitID:    unitID,
			Text:      text,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to create transcript entry: %w", err)
		}
		return nil
	})
}

// FetchTranscript retrieves transcript entries in sequence order
// limit: maximum number of entries to retrieve (0 = all), keeping the most recent
func (s *gormStore) FetchTranscript(sessionID string, limit int) ([]TranscriptEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var entries []TranscriptEntry
	query := s.db.Where("session_id = ?", sessionID).Order("sequence ASC")

	if limit > 0 {
		var count int64
		if err := s.db.Model(&TranscriptEntry{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count transcript entries: %w", err)
		}
		query = query.Limit(limit)
		if count > int64(limit) {
			query = query.Offset(int(count) - limit)
		}
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	return entries, nil
}
