package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/zapdesk/zapdesk/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes a database connection from config.DBURI.
func NewDatabase() (*gorm.DB, error) {
	return NewDatabaseWithURI(config.DBURI)
}

// NewDatabaseWithURI opens a connection for the given URI. Postgres URIs
// use the postgres driver; everything else is treated as a SQLite DSN.
func NewDatabaseWithURI(uri string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isPostgres := strings.HasPrefix(uri, "postgres:") || strings.HasPrefix(uri, "postgresql:")

	if isPostgres {
		dialector = postgres.Open(uri)
	} else {
		dsn := strings.TrimPrefix(uri, "file:")
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_foreign_keys=on"
		}
		dialector = sqlite.Open("file:" + dsn)
	}

	logMode := logger.Silent
	if config.AppDebug {
		logMode = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %w", uri, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if isPostgres {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}
