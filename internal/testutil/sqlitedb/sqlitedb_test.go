package sqlitedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStripsRowLocks(t *testing.T) {
	db := New(t)

	var ids []int64
	err := db.Raw(`SELECT id FROM subscriptions WHERE id > ? ORDER BY id LIMIT ? FOR UPDATE SKIP LOCKED`, 0, 10).Scan(&ids).Error
	require.NoError(t, err)
	assert.Empty(t, ids)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plans FOR UPDATE`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestStripLockingLeavesOtherSQLAlone(t *testing.T) {
	sql := "SELECT * FROM plans WHERE code = 'for update'"
	assert.Equal(t, sql, lockingClause.ReplaceAllString(sql, ""))
	assert.Equal(t, "SELECT id FROM t ORDER BY id", lockingClause.ReplaceAllString("SELECT id FROM t ORDER BY id FOR UPDATE SKIP LOCKED", ""))
}
