package database

import (
	"fmt"
	"os"
	"path/filepath"

	"recipebox/internal/config"
	"recipebox/internal/recipebox"
)

// NewLocalStoreFromConfig creates a LocalStore implementation based on the database config type.
func NewLocalStoreFromConfig(cfg config.DatabaseConfig, deviceID string) (recipebox.LocalStore, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if deviceID == "" {
			return nil, fmt.Errorf("device id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		path = filepath.Join(cfg.DataDir, deviceID+".db")
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
