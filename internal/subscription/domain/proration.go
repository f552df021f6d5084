package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
)

const (
	TrialLength   = 14 * 24 * time.Hour
	RenewalWindow = 7 * 24 * time.Hour

	monthlyCycle = 30 * 24 * time.Hour
	yearlyCycle  = 365 * 24 * time.Hour
)

// EndDate returns the end of a billing period starting at start. Months are a
// flat 30 days and years 365 days.
func EndDate(start time.Time, cycle plandomain.BillingCycle) time.Time {
	if cycle == plandomain.BillingCycleYearly {
		return start.Add(yearlyCycle)
	}
	return start.Add(monthlyCycle)
}

// DaysBetween returns the whole days from a to b, floored.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

// Prorate returns the charge for moving sub from oldPlan to newPlan at now.
// Only the final amount is rounded to cents. Downgrades and degenerate
// periods yield zero; there are no refunds.
func Prorate(sub Subscription, oldPlan, newPlan plandomain.Plan, now time.Time) decimal.Decimal {
	totalDays := DaysBetween(sub.StartedAt, sub.EndsAt)
	if totalDays <= 0 {
		return decimal.Zero
	}
	remainingDays := DaysBetween(now, sub.EndsAt)
	if remainingDays <= 0 {
		return decimal.Zero
	}

	amount := newPlan.Price.Sub(oldPlan.Price).
		Mul(decimal.NewFromInt(int64(remainingDays))).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
