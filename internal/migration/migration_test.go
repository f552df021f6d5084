package migration

import (
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestAutoMigrateCreatesLiveIndex(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	// Running twice is harmless.
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"plans", "subscriptions", "invoices", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	var count int64
	require.NoError(t, conn.Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'ux_subscriptions_team_live'`,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAutoMigrateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantbill.db")
	open := func() *gorm.DB {
		conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		sqlDB, err := conn.DB()
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlDB.Close() })
		return conn
	}

	require.NoError(t, AutoMigrate(open()))

	conn := open()
	require.NoError(t, AutoMigrate(conn))
	assert.True(t, conn.Migrator().HasIndex(&subscriptiondomain.Subscription{}, liveSubscriptionIndexName))

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	row := func(id int64, status subscriptiondomain.SubscriptionStatus) *subscriptiondomain.Subscription {
		return &subscriptiondomain.Subscription{
			ID:          snowflakeID(id),
			TeamID:      7,
			PlanID:      1,
			Status:      status,
			StartedAt:   now,
			EndsAt:      now.Add(30 * 24 * time.Hour),
			RenewalDate: now.Add(30 * 24 * time.Hour),
			TotalPaid:   decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	require.NoError(t, conn.Create(row(1, subscriptiondomain.SubscriptionStatusCanceled)).Error)
	require.NoError(t, conn.Create(row(2, subscriptiondomain.SubscriptionStatusActive)).Error)
	assert.Error(t, conn.Create(row(3, subscriptiondomain.SubscriptionStatusTrial)).Error)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

func snowflakeID(id int64) snowflake.ID { return snowflake.ID(id) }
