package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func monthlyPlan(id int64, price string) plandomain.Plan {
	return plandomain.Plan{
		ID:           snowflakeID(id),
		Code:         "plan-" + price,
		Price:        decimal.RequireFromString(price),
		BillingCycle: plandomain.BillingCycleMonthly,
		IsActive:     true,
	}
}

func activeSub(plan plandomain.Plan, startedAt time.Time) Subscription {
	endsAt := EndDate(startedAt, plan.BillingCycle)
	return Subscription{
		ID:          snowflakeID(100),
		TeamID:      snowflakeID(7),
		PlanID:      plan.ID,
		Status:      SubscriptionStatusActive,
		StartedAt:   startedAt,
		EndsAt:      endsAt,
		RenewalDate: endsAt,
		TotalPaid:   decimal.Zero,
		IsAutoRenew: true,
	}
}

func TestEndDate(t *testing.T) {
	assert.Equal(t, epoch.Add(30*24*time.Hour), EndDate(epoch, plandomain.BillingCycleMonthly))
	assert.Equal(t, epoch.Add(365*24*time.Hour), EndDate(epoch, plandomain.BillingCycleYearly))
}

func TestDaysBetweenFloors(t *testing.T) {
	assert.Equal(t, 10, DaysBetween(epoch, epoch.Add(10*24*time.Hour+23*time.Hour)))
	assert.Equal(t, 0, DaysBetween(epoch, epoch.Add(5*time.Hour)))
	assert.Equal(t, -1, DaysBetween(epoch, epoch.Add(-5*time.Hour)))
}

func TestProrateUpgradeScenario(t *testing.T) {
	basic := monthlyPlan(1, "100")
	pro := monthlyPlan(2, "200")
	sub := activeSub(basic, epoch)
	now := epoch.Add(20 * 24 * time.Hour)

	amount := Prorate(sub, basic, pro, now)

	assert.Equal(t, "33.33", amount.StringFixed(2))
	assert.InDelta(t, 33.4, amount.InexactFloat64(), 0.1)
}

func TestProrateYearlyKeepsSubCentPrecision(t *testing.T) {
	yearly := func(id int64, price string) plandomain.Plan {
		p := monthlyPlan(id, price)
		p.BillingCycle = plandomain.BillingCycleYearly
		return p
	}
	now := epoch.Add(24 * time.Hour)

	cases := []struct {
		from, to string
		want     string
	}{
		{"10", "11", "1.00"},
		{"100", "105", "4.99"},
		{"1200", "1300", "99.73"},
	}
	for _, tc := range cases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			oldPlan, newPlan := yearly(1, tc.from), yearly(2, tc.to)
			sub := activeSub(oldPlan, epoch)

			assert.Equal(t, tc.want, Prorate(sub, oldPlan, newPlan, now).StringFixed(2))
		})
	}
}

func TestProrateDowngradeIsZero(t *testing.T) {
	basic := monthlyPlan(1, "100")
	pro := monthlyPlan(2, "200")
	sub := activeSub(pro, epoch)

	amount := Prorate(sub, pro, basic, epoch.Add(5*24*time.Hour))

	assert.True(t, amount.IsZero())
}

func TestProrateDegeneratePeriods(t *testing.T) {
	basic := monthlyPlan(1, "100")
	pro := monthlyPlan(2, "200")

	t.Run("period already over", func(t *testing.T) {
		sub := activeSub(basic, epoch)
		assert.True(t, Prorate(sub, basic, pro, epoch.Add(31*24*time.Hour)).IsZero())
	})

	t.Run("zero length period", func(t *testing.T) {
		sub := activeSub(basic, epoch)
		sub.EndsAt = sub.StartedAt
		assert.True(t, Prorate(sub, basic, pro, epoch).IsZero())
	})
}
