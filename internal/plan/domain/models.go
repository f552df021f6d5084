// Package domain holds the plan catalog model. Plans are reference data: the
// billing engine reads them but never edits them outside the startup seed.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// ParseBillingCycle normalizes user input. An empty value is returned as-is
// so callers can fall back to a plan's own cycle.
func ParseBillingCycle(value string) (BillingCycle, error) {
	cycle := BillingCycle(strings.ToLower(strings.TrimSpace(value)))
	if cycle == "" {
		return "", nil
	}
	if !cycle.Valid() {
		return "", ErrInvalidBillingCycle
	}
	return cycle, nil
}

type Plan struct {
	ID           snowflake.ID                `gorm:"primaryKey" json:"id"`
	Code         string                      `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string                      `gorm:"type:text;not null" json:"name"`
	Price        decimal.Decimal             `gorm:"type:numeric(12,2);not null" json:"price"`
	BillingCycle BillingCycle                `gorm:"type:text;not null" json:"billing_cycle"`
	Features     datatypes.JSONSlice[string] `json:"features"`
	MaxTeams     int                         `gorm:"not null;default:1" json:"max_teams"`
	MaxUsers     int                         `gorm:"not null;default:1" json:"max_users"`
	IsActive     bool                        `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

// HasFeature reports whether the plan grants feature.
func (p Plan) HasFeature(feature string) bool {
	feature = strings.TrimSpace(feature)
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// NormalizeFeatures trims, drops empties and deduplicates while keeping order.
func NormalizeFeatures(features []string) []string {
	seen := make(map[string]struct{}, len(features))
	out := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
