// Package sqlite is the embedded store backend built on gorm and a pure Go
// SQLite driver. It is the default for local runs and the backend used by the
// end to end ingestion tests.
package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Store implements store.Store on top of a gorm database.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database file at path (":memory:" for an in-memory
// database) and migrates the schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("Open: creating data dir: %w", err)
		}
	}

	config := &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().In(time.UTC)
		},
		Logger: &gormLogger{log: log},
	}

	db, err := gorm.Open(sqlite.Open(path), config)
	if err != nil {
		return nil, fmt.Errorf("Open: connecting: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("Open: getting sql.DB: %w", err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&transactionModel{},
		&sourceModel{},
		&attachmentModel{},
		&merchantModel{},
		&merchantAliasModel{},
		&fxRateModel{},
		&ruleModel{},
		&categoryModel{},
		&settingsModel{},
		&usageModel{},
	)
	if err != nil {
		return fmt.Errorf("Migrate: auto migrate: %w", err)
	}
	return nil
}

// DB exposes the gorm handle for maintenance commands and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
