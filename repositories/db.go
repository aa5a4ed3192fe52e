package repositories

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DBConnection is the shared registry database handle.
var DBConnection *gorm.DB

// InitDB opens the registry database. A non-empty PostgreSQL DSN wins;
// otherwise the SQLite file at sqlitePath is opened (and created on first
// use).
func InitDB(databaseURL, sqlitePath string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	DBConnection = db
	logrus.Info("Registry database connection established")
	return db, nil
}
