package orm

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"package-registry/config"
)

// DB wraps the gorm handle. It is opened once at startup, injected into
// every component that needs it and closed at shutdown; it is never
// reassigned mid-request.
type DB struct {
	gorm *gorm.DB
}

// Open connects to postgres and migrates the principal, group and grant
// tables.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	dsnRedacted := dsn
	if cfg.Password != "" {
		dsnRedacted = strings.ReplaceAll(dsn, cfg.Password, "*****")
	}
	log.Debug().
		Msgf("Connecting to postgres using the following information: %s", dsnRedacted)

	handle, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err := handle.AutoMigrate(&User{}, &Token{}, &Group{}, &PermissionGrant{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug().Msg("Successfully connected to the database")

	return &DB{gorm: handle}, nil
}

// FromGorm wraps an existing gorm handle. Used by tests that supply their
// own dialector.
func FromGorm(handle *gorm.DB) *DB {
	return &DB{gorm: handle}
}

func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying connection: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
