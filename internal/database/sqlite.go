package database

import (
	"errors"

	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errMissingDatabasePath = errors.New("database: path is required")

// OpenSQLite opens the favorites database and brings its schema up to date.
func OpenSQLite(path string, log *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, errMissingDatabasePath
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&favorites.Document{}, &users.Identity{}); err != nil {
		return nil, err
	}

	log.Info("database initialized", zap.String("path", path))
	return db, nil
}
