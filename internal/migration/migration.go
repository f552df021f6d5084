package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"gorm.io/gorm"
)

// liveSubscriptionIndex backs the one-live-subscription-per-team rule on
// databases that support partial indexes. Keep it on one line: the sqlite
// migrator re-parses stored index DDL on every AutoMigrate and expects
// "INDEX <name> ON".
const (
	liveSubscriptionIndexName = "ux_subscriptions_team_live"
	liveSubscriptionIndex     = "CREATE UNIQUE INDEX " + liveSubscriptionIndexName +
		" ON subscriptions (team_id) WHERE status IN ('trial', 'active')"
)

// Migrate brings the schema up to date. Postgres uses the embedded SQL
// migrations; other dialects fall back to gorm AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "postgres", "postgresql":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the billing tables from the gorm models.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&auditdomain.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if conn.Dialector.Name() == "mysql" {
		// No partial indexes; the in-transaction lookup still guards creation.
		return nil
	}
	if conn.Migrator().HasIndex(&subscriptiondomain.Subscription{}, liveSubscriptionIndexName) {
		return nil
	}
	if err := conn.Exec(liveSubscriptionIndex).Error; err != nil {
		return fmt.Errorf("create live subscription index: %w", err)
	}
	return nil
}
