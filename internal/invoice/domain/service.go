package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoiceRequest struct {
	pagination.Pagination
	SubscriptionID snowflake.ID
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type MarkPaidRequest struct {
	InvoiceID        snowflake.ID
	PaymentReference string
	PaidAt           *time.Time
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Emit creates an invoice inside tx, the caller's transaction.
	Emit(ctx context.Context, tx *gorm.DB, sub subscriptiondomain.Subscription, amount decimal.Decimal, reason Reason) (Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	ListBySubscription(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Invoice, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID, afterID snowflake.ID, limit int) ([]*Invoice, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, reference string) error
}

var (
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidInvoiceID        = errors.New("invalid_invoice_id")
	ErrInvalidPaymentReference = errors.New("invalid_payment_reference")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
)
