package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type StatusCounts struct {
	Trial    int64 `json:"trial"`
	Active   int64 `json:"active"`
	Canceled int64 `json:"canceled"`
	Expired  int64 `json:"expired"`
}

// SubscriptionStats is a point-in-time snapshot. Its parts are read
// independently, so concurrent sweeps may make them disagree slightly.
type SubscriptionStats struct {
	Subscriptions       StatusCounts    `json:"subscriptions"`
	AutoRenewing        int64           `json:"auto_renewing"`
	Revenue30d          decimal.Decimal `json:"revenue_30d"`
	Revenue365d         decimal.Decimal `json:"revenue_365d"`
	UnpaidInvoiceCount  int64           `json:"unpaid_invoice_count"`
	UnpaidInvoiceAmount decimal.Decimal `json:"unpaid_invoice_amount"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	GetSubscriptionStats(ctx context.Context) (SubscriptionStats, error)
}
