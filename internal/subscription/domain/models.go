// Package domain contains the subscription model and its pure lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// LiveStatuses are the statuses a team may hold at most one subscription in.
var LiveStatuses = []SubscriptionStatus{
	SubscriptionStatusTrial,
	SubscriptionStatusActive,
}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionStatusTrial || s == SubscriptionStatusActive
}

// Subscription is a team's billing agreement against one plan.
type Subscription struct {
	ID            snowflake.ID       `gorm:"primaryKey" json:"id"`
	TeamID        snowflake.ID       `gorm:"not null;index" json:"team_id"`
	PlanID        snowflake.ID       `gorm:"not null;index" json:"plan_id"`
	Status        SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`
	StartedAt     time.Time          `gorm:"not null" json:"started_at"`
	EndsAt        time.Time          `gorm:"not null" json:"ends_at"`
	RenewalDate   time.Time          `gorm:"not null;index" json:"renewal_date"`
	TrialEndsAt   *time.Time         `json:"trial_ends_at,omitempty"`
	CanceledAt    *time.Time         `json:"canceled_at,omitempty"`
	PaymentMethod *string            `gorm:"type:text" json:"payment_method,omitempty"`
	TotalPaid     decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"total_paid"`
	IsAutoRenew   bool               `gorm:"not null" json:"is_auto_renew"`
	CreatedAt     time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ChargeReason names the billing event that produced an invoice.
type ChargeReason string

const (
	ChargeReasonTrialStart ChargeReason = "trial_start"
	ChargeReasonRenewal    ChargeReason = "renewal"
	ChargeReasonUpgrade    ChargeReason = "upgrade"
)

// Charge is an invoice the caller must emit alongside a transition.
type Charge struct {
	Amount decimal.Decimal
	Reason ChargeReason
}
