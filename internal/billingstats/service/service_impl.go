package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	billingstats "github.com/smallbiznis/tenantbill/internal/billingstats/domain"
	"github.com/smallbiznis/tenantbill/internal/clock"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) billingstats.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingstats.service"),
		clock: p.Clock,
	}
}

type statusCountRow struct {
	Status subscriptiondomain.SubscriptionStatus
	Count  int64
}

type amountRow struct {
	Count int64
	Total decimal.Decimal
}

// GetSubscriptionStats runs its aggregates concurrently and outside any
// transaction.
func (s *Service) GetSubscriptionStats(ctx context.Context) (billingstats.SubscriptionStats, error) {
	now := s.clock.Now()
	stats := billingstats.SubscriptionStats{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.countByStatus(gctx)
		if err != nil {
			return fmt.Errorf("count subscriptions: %w", err)
		}
		stats.Subscriptions = counts
		return nil
	})
	g.Go(func() error {
		var count int64
		err := s.db.WithContext(gctx).Raw(
			`SELECT COUNT(*) FROM subscriptions WHERE status = ? AND is_auto_renew = ?`,
			subscriptiondomain.SubscriptionStatusActive,
			true,
		).Scan(&count).Error
		if err != nil {
			return fmt.Errorf("count auto renewing: %w", err)
		}
		stats.AutoRenewing = count
		return nil
	})
	g.Go(func() error {
		row, err := s.paidSince(gctx, now.AddDate(0, 0, -30))
		if err != nil {
			return fmt.Errorf("revenue 30d: %w", err)
		}
		stats.Revenue30d = row.Total
		return nil
	})
	g.Go(func() error {
		row, err := s.paidSince(gctx, now.AddDate(0, 0, -365))
		if err != nil {
			return fmt.Errorf("revenue 365d: %w", err)
		}
		stats.Revenue365d = row.Total
		return nil
	})
	g.Go(func() error {
		var row amountRow
		err := s.db.WithContext(gctx).Raw(
			`SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total FROM invoices WHERE status = ?`,
			invoicedomain.InvoiceStatusUnpaid,
		).Scan(&row).Error
		if err != nil {
			return fmt.Errorf("unpaid invoices: %w", err)
		}
		stats.UnpaidInvoiceCount = row.Count
		stats.UnpaidInvoiceAmount = row.Total.Round(2)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.log.Warn("subscription stats failed", zap.Error(err))
		return billingstats.SubscriptionStats{}, err
	}
	return stats, nil
}

func (s *Service) countByStatus(ctx context.Context) (billingstats.StatusCounts, error) {
	var rows []statusCountRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM subscriptions GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return billingstats.StatusCounts{}, err
	}

	var counts billingstats.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case subscriptiondomain.SubscriptionStatusTrial:
			counts.Trial = row.Count
		case subscriptiondomain.SubscriptionStatusActive:
			counts.Active = row.Count
		case subscriptiondomain.SubscriptionStatusCanceled:
			counts.Canceled = row.Count
		case subscriptiondomain.SubscriptionStatusExpired:
			counts.Expired = row.Count
		}
	}
	return counts, nil
}

func (s *Service) paidSince(ctx context.Context, since time.Time) (amountRow, error) {
	var row amountRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
		 FROM invoices
		 WHERE status = ? AND paid_at >= ?`,
		invoicedomain.InvoiceStatusPaid,
		since,
	).Scan(&row).Error
	if err != nil {
		return amountRow{}, err
	}
	row.Total = row.Total.Round(2)
	return row, nil
}
