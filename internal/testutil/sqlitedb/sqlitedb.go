// Package sqlitedb opens a migrated SQLite database for package tests.
package sqlitedb

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantbill/internal/migration"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var lockingClause = regexp.MustCompile(`(?i)\s+FOR\s+UPDATE(\s+SKIP\s+LOCKED)?`)

// New returns a file-backed SQLite database in t.TempDir with the billing
// schema applied. Row locking clauses are stripped since SQLite serializes
// writers anyway.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tenantbill.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(0)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlitedb:strip_locking", stripLocking))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlitedb:strip_locking", stripLocking))
	require.NoError(t, db.Callback().Raw().Before("gorm:raw").Register("sqlitedb:strip_locking", stripLocking))

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func stripLocking(db *gorm.DB) {
	sql := db.Statement.SQL.String()
	if sql == "" || !lockingClause.MatchString(sql) {
		return
	}
	db.Statement.SQL.Reset()
	db.Statement.SQL.WriteString(lockingClause.ReplaceAllString(sql, ""))
}
