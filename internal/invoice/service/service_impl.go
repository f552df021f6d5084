package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	"github.com/smallbiznis/tenantbill/internal/clock"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/tenantbill/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID            *snowflake.Node
	clock            clock.Clock
	repo             invoicedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	auditSvc         auditdomain.Service
	metrics          *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             invoicedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	AuditSvc         auditdomain.Service `optional:"true"`
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		auditSvc:         p.AuditSvc,
		metrics:          p.Metrics,
	}
}

// Emit is the only path that creates invoices.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, sub subscriptiondomain.Subscription, amount decimal.Decimal, reason invoicedomain.Reason) (invoicedomain.Invoice, error) {
	inv, err := invoicedomain.EmitInvoice(sub, amount, reason, s.clock.Now())
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	inv.ID = s.genID.Generate()

	if err := s.repo.Insert(ctx, tx, &inv); err != nil {
		return invoicedomain.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	s.metrics.RecordInvoiceEmitted(ctx, string(reason))
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if inv == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *inv, nil
}

func (s *Service) ListBySubscription(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.SubscriptionID == 0 {
		return invoicedomain.ListInvoiceResponse{}, subscriptiondomain.ErrInvalidSubscription
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
	}
	var afterID snowflake.ID
	if cursor != nil {
		afterID, err = snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
	}

	limit := req.Limit()
	items, err := s.repo.ListBySubscription(ctx, s.db, req.SubscriptionID, afterID, limit)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(item *invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

// MarkPaid is the payment confirmation hook. Confirming an already paid
// invoice returns it unchanged, so gateway retries are harmless.
func (s *Service) MarkPaid(ctx context.Context, req invoicedomain.MarkPaidRequest) (invoicedomain.Invoice, error) {
	if req.InvoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	reference := strings.TrimSpace(req.PaymentReference)
	if reference == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPaymentReference
	}
	paidAt := s.clock.Now()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	var (
		result  invoicedomain.Invoice
		settled bool
		teamID  snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if inv.Status == invoicedomain.InvoiceStatusPaid {
			result = *inv
			return nil
		}

		sub, err := s.subscriptionRepo.FindByIDForUpdate(ctx, tx, inv.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if err := s.repo.MarkPaid(ctx, tx, inv.ID, paidAt, reference); err != nil {
			return err
		}
		if err := s.subscriptionRepo.AddTotalPaid(ctx, tx, sub.ID, inv.Amount, paidAt); err != nil {
			return err
		}

		inv.Status = invoicedomain.InvoiceStatusPaid
		inv.PaidAt = &paidAt
		inv.PaymentReference = &reference
		inv.UpdatedAt = paidAt
		result = *inv
		settled = true
		teamID = sub.TeamID
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if settled {
		s.metrics.RecordInvoicePaid(ctx)
		s.log.Info("invoice paid",
			zap.String("invoice_id", result.ID.String()),
			zap.String("subscription_id", result.SubscriptionID.String()),
			zap.String("amount", result.Amount.StringFixed(2)),
		)
		s.emitAudit(ctx, teamID, result)
	}
	return result, nil
}

func (s *Service) emitAudit(ctx context.Context, teamID snowflake.ID, inv invoicedomain.Invoice) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"subscription_id": inv.SubscriptionID.String(),
		"amount":          inv.Amount.StringFixed(2),
		"reason":          string(inv.Reason),
	}
	if inv.PaymentReference != nil {
		metadata["payment_reference"] = *inv.PaymentReference
	}
	targetID := inv.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &teamID, "", nil, "invoice.paid", "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", "invoice.paid"),
			zap.String("invoice_id", targetID),
			zap.Error(err),
		)
	}
}
