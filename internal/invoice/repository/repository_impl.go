package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `id, subscription_id, amount, status, reason, issued_at, paid_at,
	payment_reference, created_at, updated_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.SubscriptionID,
		invoice.Amount,
		invoice.Status,
		invoice.Reason,
		invoice.IssuedAt,
		invoice.PaidAt,
		invoice.PaymentReference,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID, afterID snowflake.ID, limit int) ([]*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("subscription_id = ?", subscriptionID)
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	stmt = stmt.Order("id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit + 1)
	}

	var items []*invoicedomain.Invoice
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, reference string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, payment_reference = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusPaid,
		paidAt,
		reference,
		paidAt,
		id,
		invoicedomain.InvoiceStatusUnpaid,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}
