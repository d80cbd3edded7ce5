package database

import (
	"fmt"
	"strings"

	"github.com/robinjoseph08/golib/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mrlokans/listenwise/internal/entities"
)

// Models lists every table managed by AutoMigrate.
var Models = []any{
	&entities.StoredCredential{},
	&entities.AuthChallenge{},
	&entities.Book{},
	&entities.Contributor{},
	&entities.BookContributor{},
	&entities.Series{},
	&entities.BookSeries{},
	&entities.LibraryEntry{},
	&entities.Recommendation{},
	&entities.Preferences{},
	&entities.RunClaim{},
	&entities.AuditEvent{},
}

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := Open(dbPath, gormlogger.Warn)
	if err != nil {
		return nil, err
	}

	logger.New().Info("database initialized", logger.Data{"path": dbPath})

	return &Database{DB: db}, nil
}

// Open connects to the sqlite file at dbPath and migrates all models.
func Open(dbPath string, level gormlogger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withBusyTimeout(dbPath)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withBusyTimeout(dbPath string) string {
	if dbPath == ":memory:" || strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_busy_timeout=5000"
}
