////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

// Handles low level database control and interfaces

package storage

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Cache is the local message cache backed by sqlite. Messages replayed from
// it are provisional and are reconciled against the backend by the caller.
type Cache struct {
	db *gorm.DB // Stored database connection
}

// NewCache opens the message cache at dbFilePath. An empty path creates an
// in-memory database named after name.
func NewCache(dbFilePath, name string) (*Cache, error) {
	if len(dbFilePath) == 0 {
		dbFilePath = fmt.Sprintf(temporaryDbPath, name)
		jww.WARN.Printf("[CACHE SQL] No database file path specified! " +
			"Using temporary in-memory database")
	}

	// Create the database connection
	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Info}),
	})
	if err != nil {
		return nil, errors.Errorf("Unable to initialize database backend: %+v", err)
	}

	// Enable foreign keys because they are disabled in SQLite by default
	if err = db.Exec("PRAGMA foreign_keys = ON", nil).Error; err != nil {
		return nil, err
	}

	// Enable Write Ahead Logging to enable multiple DB connections
	if err = db.Exec("PRAGMA journal_mode = WAL;", nil).Error; err != nil {
		return nil, err
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, errors.Errorf(
			"Unable to configure database connection pool: %+v", err)
	}
	sqlDb.SetMaxIdleConns(2)
	sqlDb.SetMaxOpenConns(4)
	sqlDb.SetConnMaxIdleTime(5 * time.Minute)
	sqlDb.SetConnMaxLifetime(10 * time.Minute)

	// WARNING: Order is important. Do not change without database testing
	if err = db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return nil, err
	}

	jww.INFO.Println("[CACHE SQL] Database backend initialized successfully!")
	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	sqlDb, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
