package option

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID   int64
	Name string
}

func dryRun(t *testing.T, opts ...QueryOption) string {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	stmt := db.Model(&row{})
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	var out []row
	return stmt.Find(&out).Statement.SQL.String()
}

func TestApplyOperator(t *testing.T) {
	sql := dryRun(t, ApplyOperator(Condition{Field: "id", Operator: GTE, Value: 10}))
	assert.Contains(t, sql, "id >= ?")
}

func TestApplyOperatorRejectsUnsafeField(t *testing.T) {
	sql := dryRun(t, ApplyOperator(Condition{Field: "id; drop table rows", Operator: EQ, Value: 1}))
	assert.NotContains(t, sql, "WHERE")
}

func TestSortAndPagination(t *testing.T) {
	sql := dryRun(t, WithQuerySortBy("-name", "name", "id"), ApplyPagination(5, 10))
	assert.Contains(t, sql, "ORDER BY name DESC")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")
}

func TestWithQuerySortByIgnoresUnknownField(t *testing.T) {
	sql := dryRun(t, WithQuerySortBy("secret"))
	assert.NotContains(t, sql, "ORDER BY")
}
