package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// State bundles the live database handle. Grounded on the teacher's
// db.State / db.InitDb(type, dsn) pattern referenced from cmd/config.go's
// DatabaseConfig.getState.
type State struct {
	DB *gorm.DB
}

// InitDB opens and migrates the database selected by dbType ("sqlite" or
// "postgres") using dsn as the connection string, mirroring the teacher's
// type-switch-on-config driver selection.
func InitDB(dbType, dsn string) (*State, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(dbType) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (must be 'sqlite' or 'postgres')", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &State{DB: db}, nil
}
