package stores

import (
	"gorm.io/gorm"
)

// Identity remembers who we are for a given backend host.
// UserID is stable across runs; SessionID is the last id assigned by the server.
type Identity struct {
	gorm.Model
	Host      string `gorm:"uniqueIndex;not null"`
	UserID    string `gorm:"not null"`
	SessionID string
}

// TranscriptEntry is one completed text unit of a streaming session.
type TranscriptEntry struct {
	gorm.Model
	SessionID string `gorm:"index;not null"`
	Sequence  int    `gorm:"not null"`
	Role      string `gorm:"not null"` // "user", "agent"
	UnitID    string `gorm:"index"`
	Text      string `gorm:"type:text"`
}

// LinkStore persists the client-side state of a streaming link.
type LinkStore interface {
	// Identity operations
	LoadIdentity(host string) (*Identity, error)
	SaveIdentity(host, userID string) (*Identity, error)
	SaveSessionID(host, sessionID string) error

	// Transcript operations
	SaveTurn(sessionID, role, unitID, text string) error
	FetchTranscript(sessionID string, limit int) ([]TranscriptEntry, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error

	// DB exposes the underlying connection so sibling stores (traces) can share it.
	DB() *gorm.DB
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // file path or DSN
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
