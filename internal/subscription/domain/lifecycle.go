package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
)

type EventType string

const (
	EventActivate  EventType = "activate"
	EventCancel    EventType = "cancel"
	EventRenew     EventType = "renew"
	EventUpgrade   EventType = "upgrade"
	EventAutoRenew EventType = "auto_renew"
	EventExpire    EventType = "expire"
)

// Event drives one transition. Plan is the subscription's current plan;
// NewPlan is only read for upgrades.
type Event struct {
	Type    EventType
	Now     time.Time
	Plan    plandomain.Plan
	NewPlan *plandomain.Plan
}

// Transition is the outcome of Apply. When Changed is false Subscription is
// the input unchanged and nothing needs persisting.
type Transition struct {
	Subscription Subscription
	Changed      bool
	Charge       *Charge
}

type NewTrialParams struct {
	ID            snowflake.ID
	TeamID        snowflake.ID
	Plan          plandomain.Plan
	BillingCycle  plandomain.BillingCycle
	AutoRenew     bool
	PaymentMethod *string
	Now           time.Time
}

// NewTrial builds a fresh trial subscription and the zero-amount charge that
// opens its invoice history.
func NewTrial(p NewTrialParams) (Subscription, Charge, error) {
	if p.TeamID == 0 {
		return Subscription{}, Charge{}, ErrInvalidTeam
	}
	if !p.Plan.IsActive {
		return Subscription{}, Charge{}, plandomain.ErrPlanInactive
	}
	cycle := p.BillingCycle
	if cycle == "" {
		cycle = p.Plan.BillingCycle
	}
	if !cycle.Valid() {
		return Subscription{}, Charge{}, plandomain.ErrInvalidBillingCycle
	}

	trialEndsAt := p.Now.Add(TrialLength)
	endsAt := EndDate(p.Now, cycle)
	sub := Subscription{
		ID:            p.ID,
		TeamID:        p.TeamID,
		PlanID:        p.Plan.ID,
		Status:        SubscriptionStatusTrial,
		StartedAt:     p.Now,
		EndsAt:        endsAt,
		RenewalDate:   endsAt,
		TrialEndsAt:   &trialEndsAt,
		PaymentMethod: p.PaymentMethod,
		TotalPaid:     decimal.Zero,
		IsAutoRenew:   p.AutoRenew,
		CreatedAt:     p.Now,
		UpdatedAt:     p.Now,
	}
	return sub, Charge{Amount: decimal.Zero, Reason: ChargeReasonTrialStart}, nil
}

// Apply computes the effect of ev on sub without touching storage.
func Apply(sub Subscription, ev Event) (Transition, error) {
	switch ev.Type {
	case EventActivate:
		return activate(sub, ev)
	case EventCancel:
		return cancel(sub, ev)
	case EventRenew:
		return renew(sub, ev)
	case EventUpgrade:
		return upgrade(sub, ev)
	case EventAutoRenew:
		return autoRenew(sub, ev)
	case EventExpire:
		return expire(sub, ev)
	default:
		return Transition{}, ErrInvalidTransition
	}
}

// DueForRenewal reports whether the renewal sweep should pick sub up at now.
func DueForRenewal(sub Subscription, now time.Time) bool {
	return sub.IsAutoRenew &&
		sub.Status == SubscriptionStatusActive &&
		!sub.RenewalDate.After(now.Add(RenewalWindow))
}

// DueForExpiration reports whether the expiration sweep should pick sub up at now.
func DueForExpiration(sub Subscription, now time.Time) bool {
	return sub.Status == SubscriptionStatusActive && !sub.EndsAt.After(now)
}

func unchanged(sub Subscription) (Transition, error) {
	return Transition{Subscription: sub}, nil
}

func activate(sub Subscription, ev Event) (Transition, error) {
	switch sub.Status {
	case SubscriptionStatusActive:
		return unchanged(sub)
	case SubscriptionStatusTrial:
	default:
		return Transition{}, ErrInvalidTransition
	}

	sub.Status = SubscriptionStatusActive
	startPeriod(&sub, ev.Now, ev.Plan.BillingCycle)
	return Transition{Subscription: sub, Changed: true}, nil
}

func cancel(sub Subscription, ev Event) (Transition, error) {
	if sub.Status == SubscriptionStatusCanceled || sub.Status == SubscriptionStatusExpired {
		return unchanged(sub)
	}

	now := ev.Now
	sub.Status = SubscriptionStatusCanceled
	sub.IsAutoRenew = false
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	return Transition{Subscription: sub, Changed: true}, nil
}

func renew(sub Subscription, ev Event) (Transition, error) {
	if sub.Status != SubscriptionStatusActive && sub.Status != SubscriptionStatusCanceled {
		return Transition{}, ErrInvalidTransition
	}

	sub.Status = SubscriptionStatusActive
	sub.CanceledAt = nil
	startPeriod(&sub, ev.Now, ev.Plan.BillingCycle)
	return Transition{Subscription: sub, Changed: true}, nil
}

func upgrade(sub Subscription, ev Event) (Transition, error) {
	if ev.NewPlan == nil {
		return Transition{}, plandomain.ErrPlanNotFound
	}
	newPlan := *ev.NewPlan
	if newPlan.ID == sub.PlanID {
		return unchanged(sub)
	}
	if !sub.Status.IsLive() {
		return Transition{}, ErrInvalidTransition
	}
	if !newPlan.IsActive {
		return Transition{}, plandomain.ErrPlanInactive
	}

	var charge *Charge
	if sub.Status == SubscriptionStatusActive {
		amount := Prorate(sub, ev.Plan, newPlan, ev.Now)
		if amount.IsPositive() {
			charge = &Charge{Amount: amount, Reason: ChargeReasonUpgrade}
		}
	}

	sub.PlanID = newPlan.ID
	sub.EndsAt = EndDate(ev.Now, newPlan.BillingCycle)
	sub.RenewalDate = sub.EndsAt
	sub.UpdatedAt = ev.Now
	return Transition{Subscription: sub, Changed: true, Charge: charge}, nil
}

// autoRenew is the sweep's renewal: it charges the full plan price and then
// renews. Rows that no longer match the sweep predicate are left alone.
func autoRenew(sub Subscription, ev Event) (Transition, error) {
	if !DueForRenewal(sub, ev.Now) {
		return unchanged(sub)
	}
	t, err := renew(sub, ev)
	if err != nil {
		return Transition{}, err
	}
	t.Charge = &Charge{Amount: ev.Plan.Price.Round(2), Reason: ChargeReasonRenewal}
	return t, nil
}

func expire(sub Subscription, ev Event) (Transition, error) {
	if !DueForExpiration(sub, ev.Now) {
		return unchanged(sub)
	}
	sub.Status = SubscriptionStatusExpired
	sub.UpdatedAt = ev.Now
	return Transition{Subscription: sub, Changed: true}, nil
}

func startPeriod(sub *Subscription, now time.Time, cycle plandomain.BillingCycle) {
	sub.StartedAt = now
	sub.EndsAt = EndDate(now, cycle)
	sub.RenewalDate = sub.EndsAt
	sub.UpdatedAt = now
}
