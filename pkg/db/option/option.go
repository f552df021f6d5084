package option

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a query before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ApplyOperator adds a WHERE clause for cond. Unknown fields or operators
// make the option a no-op rather than interpolating user input into SQL.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.ToLower(strings.TrimSpace(cond.Field))
		if !identifier.MatchString(field) {
			return db
		}
		switch cond.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", field), cond.Value)
		default:
			return db
		}
	})
}

// WithSortBy orders by field, ascending unless desc is set.
func WithSortBy(field string, desc bool) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field = strings.ToLower(strings.TrimSpace(field))
		if !identifier.MatchString(field) {
			return db
		}
		if desc {
			return db.Order(field + " DESC")
		}
		return db.Order(field + " ASC")
	})
}

// WithQuerySortBy parses "field" or "-field" from a query string.
func WithQuerySortBy(raw string, allowed ...string) QueryOption {
	raw = strings.TrimSpace(raw)
	desc := strings.HasPrefix(raw, "-")
	field := strings.TrimPrefix(raw, "-")
	for _, candidate := range allowed {
		if candidate == field {
			return WithSortBy(field, desc)
		}
	}
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db })
}

// ApplyPagination limits the result set; a non-positive limit leaves it unbounded.
func ApplyPagination(limit, offset int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}
