package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepository "github.com/smallbiznis/tenantbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/tenantbill/internal/audit/service"
	"github.com/smallbiznis/tenantbill/internal/clock"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/tenantbill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/tenantbill/internal/invoice/service"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	planrepository "github.com/smallbiznis/tenantbill/internal/plan/repository"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/smallbiznis/tenantbill/internal/subscription/repository"
	"github.com/smallbiznis/tenantbill/internal/testutil/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      subscriptiondomain.Service
	invoices invoicedomain.Service
	basic    plandomain.Plan
	pro      plandomain.Plan
	params   ServiceParam
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := sqlitedb.New(t)
	clk := clock.NewFakeClock(t0)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	subscriptionRepo := repository.Provide()
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Repo:             invoicerepository.Provide(),
		SubscriptionRepo: subscriptionRepo,
		AuditSvc:         auditSvc,
	})
	planRepo := planrepository.Provide()

	f := &fixture{db: db, clock: clk, invoices: invoiceSvc}
	f.basic = insertPlan(t, db, planRepo, node, "basic", "100")
	f.pro = insertPlan(t, db, planRepo, node, "pro", "200")

	f.params = ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       subscriptionRepo,
		PlanRepo:   planRepo,
		Invoicesvc: invoiceSvc,
		AuditSvc:   auditSvc,
	}
	f.svc = NewService(f.params)
	return f
}

// blindLiveLookupRepo never sees a live subscription, leaving the unique
// index as the only guard.
type blindLiveLookupRepo struct {
	subscriptiondomain.Repository
}

func (blindLiveLookupRepo) FindLiveByTeamID(context.Context, *gorm.DB, snowflake.ID, snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func insertPlan(t *testing.T, db *gorm.DB, repo plandomain.Repository, node *snowflake.Node, code, price string) plandomain.Plan {
	t.Helper()
	plan := plandomain.Plan{
		ID:           node.Generate(),
		Code:         code,
		Name:         code,
		Price:        decimal.RequireFromString(price),
		BillingCycle: plandomain.BillingCycleMonthly,
		Features:     datatypes.JSONSlice[string]{"projects"},
		MaxTeams:     1,
		MaxUsers:     5,
		IsActive:     true,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, repo.Insert(context.Background(), db, &plan))
	return plan
}

func (f *fixture) create(t *testing.T, teamID int64, plan plandomain.Plan) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := f.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		TeamID:        snowflake.ID(teamID),
		PlanID:        plan.ID,
		AutoRenew:     true,
		PaymentMethod: "card_visa_4242",
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) invoicesFor(t *testing.T, sub subscriptiondomain.Subscription) []invoicedomain.Invoice {
	t.Helper()
	resp, err := f.invoices.ListBySubscription(context.Background(), invoicedomain.ListInvoiceRequest{SubscriptionID: sub.ID})
	require.NoError(t, err)
	return resp.Invoices
}

func (f *fixture) countAudit(t *testing.T, action string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM audit_logs WHERE action = ?`, action).Scan(&count).Error)
	return count
}

func TestCreateStartsTrialWithSettledInvoice(t *testing.T) {
	f := newFixture(t)

	sub := f.create(t, 7, f.basic)

	assert.Equal(t, subscriptiondomain.SubscriptionStatusTrial, sub.Status)
	assert.Equal(t, t0, sub.StartedAt)
	assert.Equal(t, t0.Add(30*24*time.Hour), sub.EndsAt)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, t0.Add(14*24*time.Hour), *sub.TrialEndsAt)

	stored, err := f.svc.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusTrial, stored.Status)

	invoices := f.invoicesFor(t, sub)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].Amount.IsZero())
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoices[0].Status)
	require.NotNil(t, invoices[0].PaymentReference)
	assert.Equal(t, invoicedomain.SystemGeneratedReference, *invoices[0].PaymentReference)
	assert.Equal(t, invoicedomain.ReasonTrialStart, invoices[0].Reason)

	assert.Equal(t, int64(1), f.countAudit(t, "subscription.create"))
}

func TestCreateRejectsSecondLiveSubscription(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 7, f.basic)

	_, err := f.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		TeamID: 7,
		PlanID: f.pro.ID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrDuplicateActiveSubscription)

	// Another team is unaffected.
	f.create(t, 8, f.pro)

	// Once canceled the team may subscribe again.
	_, err = f.svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)
	f.create(t, 7, f.pro)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{PlanID: f.basic.ID})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTeam)

	_, err = f.svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{TeamID: 7, PlanID: 12345})
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = f.svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{TeamID: 7, PlanID: f.basic.ID, BillingCycle: "weekly"})
	assert.ErrorIs(t, err, plandomain.ErrInvalidBillingCycle)
}

func TestActivateAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, 7, f.basic)

	f.clock.Advance(3 * 24 * time.Hour)
	active, err := f.svc.Activate(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, active.Status)
	assert.Equal(t, f.clock.Now(), active.StartedAt)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), active.EndsAt)

	again, err := f.svc.Activate(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, active.StartedAt.Equal(again.StartedAt))
	assert.Equal(t, int64(1), f.countAudit(t, "subscription.activate"))

	canceled, err := f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, canceled.Status)
	assert.False(t, canceled.IsAutoRenew)

	_, err = f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, sub.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestRenewExpiredFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, 7, f.basic)
	_, err := f.svc.Activate(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	res, err := f.svc.Expire(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, res.Applied)

	before, err := f.svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Renew(ctx, sub.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	after, err := f.svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, after.Status)
	assert.True(t, before.StartedAt.Equal(after.StartedAt))
	assert.True(t, before.EndsAt.Equal(after.EndsAt))
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestRenewCanceledReactivatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, 7, f.basic)
	_, err := f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	renewed, err := f.svc.Renew(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, renewed.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, renewed.Status)
	assert.Nil(t, renewed.CanceledAt)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), renewed.EndsAt)

	// Manual renewal does not bill.
	assert.Len(t, f.invoicesFor(t, sub), 1)
}

func TestRenewCanceledBlockedByNewerLiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.create(t, 7, f.basic)
	_, err := f.svc.Cancel(ctx, old.ID)
	require.NoError(t, err)
	f.create(t, 7, f.pro)

	_, err = f.svc.Renew(ctx, old.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrDuplicateActiveSubscription)

	stored, err := f.svc.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, stored.Status)
}

func TestUpgradeProratesActiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, 7, f.basic)
	_, err := f.svc.Activate(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(20 * 24 * time.Hour)
	upgraded, err := f.svc.Upgrade(ctx, sub.ID, f.pro.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pro.ID, upgraded.PlanID)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), upgraded.EndsAt)
	assert.Equal(t, upgraded.EndsAt, upgraded.RenewalDate)

	invoices := f.invoicesFor(t, sub)
	require.Len(t, invoices, 2)
	charge := invoices[1]
	assert.Equal(t, "33.33", charge.Amount.StringFixed(2))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, charge.Status)
	assert.Equal(t, invoicedomain.ReasonUpgrade, charge.Reason)
	assert.Nil(t, charge.PaidAt)
}

func TestUpgradeTrialAndDowngradeEmitNoInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trial := f.create(t, 7, f.basic)
	_, err := f.svc.Upgrade(ctx, trial.ID, f.pro.ID)
	require.NoError(t, err)
	assert.Len(t, f.invoicesFor(t, trial), 1)

	active := f.create(t, 8, f.pro)
	_, err = f.svc.Activate(ctx, active.ID)
	require.NoError(t, err)
	f.clock.Advance(5 * 24 * time.Hour)

	downgraded, err := f.svc.Upgrade(ctx, active.ID, f.basic.ID)
	require.NoError(t, err)
	assert.Equal(t, f.basic.ID, downgraded.PlanID)
	assert.Len(t, f.invoicesFor(t, active), 1)

	same, err := f.svc.Upgrade(ctx, active.ID, f.basic.ID)
	require.NoError(t, err)
	assert.True(t, downgraded.UpdatedAt.Equal(same.UpdatedAt))
}

func TestAutoRenewIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, 7, f.basic)
	_, err := f.svc.Activate(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(25 * 24 * time.Hour)
	first, err := f.svc.AutoRenew(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), first.Subscription.RenewalDate)

	second, err := f.svc.AutoRenew(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	invoices := f.invoicesFor(t, sub)
	require.Len(t, invoices, 2)
	assert.Equal(t, invoicedomain.ReasonRenewal, invoices[1].Reason)
	assert.Equal(t, "100.00", invoices[1].Amount.StringFixed(2))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, invoices[1].Status)
}

func TestExpireOnlyTouchesLapsedActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.create(t, 7, f.basic)
	_, err := f.svc.Activate(ctx, active.ID)
	require.NoError(t, err)

	canceled := f.create(t, 8, f.basic)
	_, err = f.svc.Activate(ctx, canceled.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, canceled.ID)
	require.NoError(t, err)

	trial := f.create(t, 9, f.basic)

	f.clock.Advance(31 * 24 * time.Hour)

	res, err := f.svc.Expire(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, res.Subscription.Status)

	for _, id := range []snowflake.ID{canceled.ID, trial.ID} {
		res, err := f.svc.Expire(ctx, id)
		require.NoError(t, err)
		assert.False(t, res.Applied)
	}

	stored, err := f.svc.GetByID(ctx, canceled.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, stored.Status)
}

func TestTransitionUnknownSubscription(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Activate(context.Background(), 424242)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = f.svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidSubscription)
}

func TestListPaginatesByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for team := int64(1); team <= 5; team++ {
		f.create(t, team, f.basic)
	}

	page, err := f.svc.List(ctx, subscriptiondomain.ListSubscriptionRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Subscriptions, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	seen := map[snowflake.ID]bool{}
	for _, sub := range page.Subscriptions {
		seen[sub.ID] = true
	}
	for page.HasMore {
		page, err = f.svc.List(ctx, subscriptiondomain.ListSubscriptionRequest{PageSize: 2, PageToken: page.NextPageToken})
		require.NoError(t, err)
		for _, sub := range page.Subscriptions {
			assert.False(t, seen[sub.ID], "duplicate across pages")
			seen[sub.ID] = true
		}
	}
	assert.Len(t, seen, 5)

	byTeam, err := f.svc.List(ctx, subscriptiondomain.ListSubscriptionRequest{TeamID: 3, Status: "trial"})
	require.NoError(t, err)
	require.Len(t, byTeam.Subscriptions, 1)
	assert.Equal(t, snowflake.ID(3), byTeam.Subscriptions[0].TeamID)

	_, err = f.svc.List(ctx, subscriptiondomain.ListSubscriptionRequest{Status: "paused"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidStatus)

	_, err = f.svc.List(ctx, subscriptiondomain.ListSubscriptionRequest{PageToken: "%%%"})
	assert.Error(t, err)
}

func TestCreateMapsUniqueIndexViolation(t *testing.T) {
	f := newFixture(t)
	existing := f.create(t, 7, f.basic)

	params := f.params
	params.Repo = blindLiveLookupRepo{Repository: f.params.Repo}
	svc := NewService(params)

	_, err := svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		TeamID:    7,
		PlanID:    f.pro.ID,
		AutoRenew: true,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrDuplicateActiveSubscription)

	var subs, invoices int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM subscriptions WHERE team_id = ?`, 7).Scan(&subs).Error)
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM invoices`).Scan(&invoices).Error)
	assert.Equal(t, int64(1), subs)
	assert.Len(t, f.invoicesFor(t, existing), int(invoices))
}
