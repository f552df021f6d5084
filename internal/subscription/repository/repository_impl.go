package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, team_id, plan_id, status, started_at, ends_at, renewal_date,
	trial_ends_at, canceled_at, payment_method, total_paid, is_auto_renew, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TeamID,
		subscription.PlanID,
		subscription.Status,
		subscription.StartedAt,
		subscription.EndsAt,
		subscription.RenewalDate,
		subscription.TrialEndsAt,
		subscription.CanceledAt,
		subscription.PaymentMethod,
		subscription.TotalPaid,
		subscription.IsAutoRenew,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindLiveByTeamID(ctx context.Context, db *gorm.DB, teamID snowflake.ID, excludeID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE team_id = ? AND status IN ? AND id <> ?
		ORDER BY id
		LIMIT 1
		FOR UPDATE`,
		teamID,
		subscriptiondomain.LiveStatuses,
		excludeID,
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.ListFilter) ([]subscriptiondomain.Subscription, error) {
	query := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{})
	if filter.TeamID != 0 {
		query = query.Where("team_id = ?", filter.TeamID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AfterID != 0 {
		query = query.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []subscriptiondomain.Subscription
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET plan_id = ?, status = ?, started_at = ?, ends_at = ?, renewal_date = ?,
			canceled_at = ?, is_auto_renew = ?, updated_at = ?
		WHERE id = ?`,
		subscription.PlanID,
		subscription.Status,
		subscription.StartedAt,
		subscription.EndsAt,
		subscription.RenewalDate,
		subscription.CanceledAt,
		subscription.IsAutoRenew,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) AddTotalPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET total_paid = total_paid + ?, updated_at = ? WHERE id = ?`,
		amount,
		at,
		id,
	).Error
}

func (r *repo) ClaimRenewalCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions
		WHERE is_auto_renew = ? AND status = ? AND renewal_date <= ? AND id > ?
		ORDER BY id
		LIMIT ?
		FOR UPDATE SKIP LOCKED`,
		true,
		subscriptiondomain.SubscriptionStatusActive,
		cutoff,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ClaimExpirationCandidates(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions
		WHERE status = ? AND ends_at <= ? AND id > ?
		ORDER BY id
		LIMIT ?
		FOR UPDATE SKIP LOCKED`,
		subscriptiondomain.SubscriptionStatusActive,
		now,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
