// Package domain contains the invoice model and the rules for creating one.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

// Reason records which billing event produced an invoice.
type Reason string

const (
	ReasonTrialStart Reason = Reason(subscriptiondomain.ChargeReasonTrialStart)
	ReasonRenewal    Reason = Reason(subscriptiondomain.ChargeReasonRenewal)
	ReasonUpgrade    Reason = Reason(subscriptiondomain.ChargeReasonUpgrade)
)

// SystemGeneratedReference marks invoices settled by the engine itself.
const SystemGeneratedReference = "system_generated"

type Invoice struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriptionID   snowflake.ID    `gorm:"not null;index" json:"subscription_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status           InvoiceStatus   `gorm:"type:text;not null;index" json:"status"`
	Reason           Reason          `gorm:"type:text;not null" json:"reason"`
	IssuedAt         time.Time       `gorm:"not null" json:"issued_at"`
	PaidAt           *time.Time      `gorm:"index" json:"paid_at,omitempty"`
	PaymentReference *string         `gorm:"type:text" json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// EmitInvoice builds the invoice for a billing event on sub. Zero amounts are
// settled immediately; anything positive starts unpaid. sub is never mutated.
func EmitInvoice(sub subscriptiondomain.Subscription, amount decimal.Decimal, reason Reason, now time.Time) (Invoice, error) {
	if sub.ID == 0 {
		return Invoice{}, subscriptiondomain.ErrInvalidSubscription
	}
	if amount.IsNegative() {
		return Invoice{}, ErrInvalidAmount
	}

	amount = amount.Round(2)
	inv := Invoice{
		SubscriptionID: sub.ID,
		Amount:         amount,
		Status:         InvoiceStatusUnpaid,
		Reason:         reason,
		IssuedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if amount.IsZero() {
		ref := SystemGeneratedReference
		paidAt := now
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &paidAt
		inv.PaymentReference = &ref
	}
	return inv, nil
}
