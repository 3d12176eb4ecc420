package db

import (
	"fmt"

	"github.com/labforge/lims-admin/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies the schema and PostgreSQL-specific indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errIndex := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_keypairs_single_active
		ON user_keypairs (user_id)
		WHERE is_active
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create single active keypair index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_users_presence
		ON users (session_status, last_heartbeat_at)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create presence index: %w", errIndex)
	}
	return nil
}

// migrateSQLite applies the schema and SQLite-specific indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errFK := conn.Exec("PRAGMA foreign_keys=ON").Error; errFK != nil {
		return fmt.Errorf("db: enable foreign keys: %w", errFK)
	}
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errIndex := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_keypairs_single_active
		ON user_keypairs (user_id)
		WHERE is_active = 1
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create single active keypair index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_users_presence
		ON users (session_status, last_heartbeat_at)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create presence index: %w", errIndex)
	}
	return nil
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Keypair{},
		&models.Setting{},
		&models.RevokedToken{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
