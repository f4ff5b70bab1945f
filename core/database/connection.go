package database

import (
	"fmt"
	"time"

	"github.com/AzielCF/az-wacloud/core/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the gateway store described by cfg.Database.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Database)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.App.Debug {
		logLevel = logger.Info
	}

	db, err := Open(dialector, logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %w", cfg.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if isSQLite(cfg.Database.Driver) {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logrus.Infof("[DATABASE] Connected using %s driver", driverName(cfg.Database.Driver))
	return db, nil
}

// Open wraps gorm.Open with the settings every repository relies on.
// TranslateError must stay on: unique-index violations surface as
// gorm.ErrDuplicatedKey and drive the thread conflict retry.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// NewInMemory opens a private SQLite database, used by tests and the dry-run mode.
func NewInMemory() (*gorm.DB, error) {
	db, err := Open(sqlite.Open("file::memory:?_foreign_keys=on"), logger.Silent)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a second connection would see a different empty database
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func dialectorFor(c config.DatabaseConfig) (gorm.Dialector, error) {
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port)
		return postgres.Open(dsn), nil
	case "sqlserver":
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Name)
		return sqlserver.Open(dsn), nil
	case "sqlite", "":
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", c.Name)
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

func isSQLite(driver string) bool {
	return driver == "sqlite" || driver == ""
}

func driverName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}
