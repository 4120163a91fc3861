// Package database persists the relay mailbox and the screenshot gallery
// index in SQLite through GORM.
package database

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "create database dir for %q", path)
	}

	// busy_timeout lets the server and snapctl share the file.
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "open database %q", path)
	}

	if err := db.AutoMigrate(&Mailbox{}, &Screenshot{}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "migrate database")
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
