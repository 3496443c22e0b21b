// Package db opens the relational store and runs schema migrations.
package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Connect establishes a connection to the configured database.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		// busy_timeout keeps concurrent writers from failing fast on
		// SQLITE_BUSY; the guarded quota updates rely on it.
		dialector = sqlite.Open(cfg.Path + "?_pragma=busy_timeout(5000)")

	case "postgres", "postgresql":
		dsn := fmt.Sprintf(
			"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode,
		)
		dialector = postgres.Open(dsn)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs automatic migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&tenant.User{},
		&tenant.Organization{}, // parent of memberships, invites, settings
		&tenant.Membership{},
		&tenant.Invite{},
		&customize.Settings{},
		&document.Document{},
		&quota.UserQuota{},
		&quota.OrgUsage{},
		&quota.QueryLog{},
	)
}
