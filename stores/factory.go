package stores

import (
	"fmt"
)

// NewStore creates a new link store based on the configuration
func NewStore(config *StoreConfig) (LinkStore, error) {
	switch config.Type {
	case "sqlite":
		store, err := NewSQLiteStore(config)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgresStore(config)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewSQLiteStoreDefault creates a SQLite store with default settings
func NewSQLiteStoreDefault() (LinkStore, error) {
	return NewSQLiteStoreSimple("ade_client.sqlite")
}

// NewPostgresStoreDefault creates a PostgreSQL store from discrete connection parameters
func NewPostgresStoreDefault(host, user, password, dbname string, port int) (LinkStore, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresStoreSimple(dsn)
}
