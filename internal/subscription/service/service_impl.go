package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	"github.com/smallbiznis/tenantbill/internal/clock"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/tenantbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/smallbiznis/tenantbill/pkg/db"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	planRepo   plandomain.Repository
	invoicesvc invoicedomain.Service
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	PlanRepo   plandomain.Repository
	Invoicesvc invoicedomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		planRepo:   p.PlanRepo,
		invoicesvc: p.Invoicesvc,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

// outcome carries what a committed transition needs for logging and audit.
type outcome struct {
	event   subscriptiondomain.EventType
	before  subscriptiondomain.Subscription
	after   subscriptiondomain.Subscription
	changed bool
	invoice *invoicedomain.Invoice
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	if req.TeamID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTeam
	}
	if req.PlanID == 0 {
		return subscriptiondomain.Subscription{}, plandomain.ErrPlanNotFound
	}
	cycle, err := plandomain.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var paymentMethod *string
	if pm := strings.TrimSpace(req.PaymentMethod); pm != "" {
		paymentMethod = &pm
	}

	var out outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.FindByID(ctx, tx, req.PlanID)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		live, err := s.repo.FindLiveByTeamID(ctx, tx, req.TeamID, 0)
		if err != nil {
			return fmt.Errorf("lookup live subscription: %w", err)
		}
		if live != nil {
			return subscriptiondomain.ErrDuplicateActiveSubscription
		}

		sub, charge, err := subscriptiondomain.NewTrial(subscriptiondomain.NewTrialParams{
			ID:            s.genID.Generate(),
			TeamID:        req.TeamID,
			Plan:          *plan,
			BillingCycle:  cycle,
			AutoRenew:     req.AutoRenew,
			PaymentMethod: paymentMethod,
			Now:           s.clock.Now(),
		})
		if err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return subscriptiondomain.ErrDuplicateActiveSubscription
			}
			return fmt.Errorf("insert subscription: %w", err)
		}

		inv, err := s.invoicesvc.Emit(ctx, tx, sub, charge.Amount, invoicedomain.Reason(charge.Reason))
		if err != nil {
			return err
		}

		out = outcome{event: "create", after: sub, changed: true, invoice: &inv}
		return nil
	})
	if err != nil {
		s.metrics.RecordLifecycleError(ctx, "create", err)
		return subscriptiondomain.Subscription{}, err
	}

	s.committed(ctx, out)
	return out.after, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	if id == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	filter := subscriptiondomain.ListFilter{TeamID: req.TeamID}

	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		parsed := subscriptiondomain.SubscriptionStatus(status)
		if !parsed.Valid() {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidStatus
		}
		filter.Status = parsed
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, pagination.ErrInvalidPageToken
	}
	if cursor != nil {
		afterID, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	limit := pagination.Pagination{PageSize: req.PageSize}.Limit()
	filter.Limit = limit + 1

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	items := make([]*subscriptiondomain.Subscription, 0, len(rows))
	for i := range rows {
		items = append(items, &rows[i])
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(item *subscriptiondomain.Subscription) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	subscriptions := make([]subscriptiondomain.Subscription, 0, len(items))
	for _, item := range items {
		subscriptions = append(subscriptions, *item)
	}
	return subscriptiondomain.ListSubscriptionResponse{
		PageInfo:      pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	out, err := s.transition(ctx, id, subscriptiondomain.EventActivate, 0)
	return out.after, err
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	out, err := s.transition(ctx, id, subscriptiondomain.EventCancel, 0)
	return out.after, err
}

// Renew re-activates in place. It emits no invoice; the renewal sweep pairs
// its own charge with the renewal.
func (s *Service) Renew(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	out, err := s.transition(ctx, id, subscriptiondomain.EventRenew, 0)
	return out.after, err
}

func (s *Service) Upgrade(ctx context.Context, id, newPlanID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if newPlanID == 0 {
		return subscriptiondomain.Subscription{}, plandomain.ErrPlanNotFound
	}
	out, err := s.transition(ctx, id, subscriptiondomain.EventUpgrade, newPlanID)
	return out.after, err
}

func (s *Service) AutoRenew(ctx context.Context, id snowflake.ID) (subscriptiondomain.SweepResult, error) {
	out, err := s.transition(ctx, id, subscriptiondomain.EventAutoRenew, 0)
	if err != nil {
		return subscriptiondomain.SweepResult{}, err
	}
	return subscriptiondomain.SweepResult{Subscription: out.after, Applied: out.changed}, nil
}

func (s *Service) Expire(ctx context.Context, id snowflake.ID) (subscriptiondomain.SweepResult, error) {
	out, err := s.transition(ctx, id, subscriptiondomain.EventExpire, 0)
	if err != nil {
		return subscriptiondomain.SweepResult{}, err
	}
	return subscriptiondomain.SweepResult{Subscription: out.after, Applied: out.changed}, nil
}

// transition locks the subscription row, applies the event and persists the
// result together with any invoice the event charges. Audit and metrics are
// written only after commit.
func (s *Service) transition(ctx context.Context, id snowflake.ID, event subscriptiondomain.EventType, newPlanID snowflake.ID) (outcome, error) {
	if id == 0 {
		return outcome{}, subscriptiondomain.ErrInvalidSubscription
	}

	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		plan, err := s.loadPlan(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}

		ev := subscriptiondomain.Event{Type: event, Now: s.clock.Now(), Plan: plan}
		if event == subscriptiondomain.EventUpgrade {
			newPlan, err := s.loadPlan(ctx, tx, newPlanID)
			if err != nil {
				return err
			}
			ev.NewPlan = &newPlan
		}

		result, err := subscriptiondomain.Apply(*sub, ev)
		if err != nil {
			return err
		}

		out = outcome{event: event, before: *sub, after: result.Subscription, changed: result.Changed}
		if !result.Changed {
			return nil
		}

		if sub.Status == subscriptiondomain.SubscriptionStatusCanceled && result.Subscription.Status.IsLive() {
			live, err := s.repo.FindLiveByTeamID(ctx, tx, sub.TeamID, sub.ID)
			if err != nil {
				return fmt.Errorf("lookup live subscription: %w", err)
			}
			if live != nil {
				return subscriptiondomain.ErrDuplicateActiveSubscription
			}
		}

		if result.Charge != nil {
			inv, err := s.invoicesvc.Emit(ctx, tx, result.Subscription, result.Charge.Amount, invoicedomain.Reason(result.Charge.Reason))
			if err != nil {
				return err
			}
			out.invoice = &inv
		}

		if err := s.repo.UpdateLifecycle(ctx, tx, &result.Subscription); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return subscriptiondomain.ErrDuplicateActiveSubscription
			}
			return fmt.Errorf("update subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordLifecycleError(ctx, string(event), err)
		if !errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
			s.log.Warn("subscription transition failed",
				zap.String("event", string(event)),
				zap.String("subscription_id", id.String()),
				zap.Error(err),
			)
		}
		return outcome{}, err
	}

	s.committed(ctx, out)
	return out, nil
}

func (s *Service) loadPlan(ctx context.Context, tx *gorm.DB, id snowflake.ID) (plandomain.Plan, error) {
	plan, err := s.planRepo.FindByID(ctx, tx, id)
	if err != nil {
		return plandomain.Plan{}, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) committed(ctx context.Context, out outcome) {
	if !out.changed {
		return
	}
	event := string(out.event)
	s.metrics.RecordTransition(ctx, event, string(out.before.Status), string(out.after.Status))

	fields := []zap.Field{
		zap.String("event", event),
		zap.String("subscription_id", out.after.ID.String()),
		zap.String("team_id", out.after.TeamID.String()),
		zap.String("status", string(out.after.Status)),
	}
	if out.invoice != nil {
		fields = append(fields,
			zap.String("invoice_id", out.invoice.ID.String()),
			zap.String("amount", out.invoice.Amount.StringFixed(2)),
		)
	}
	s.log.Info("subscription transitioned", fields...)

	s.emitAudit(ctx, out)
}

func (s *Service) emitAudit(ctx context.Context, out outcome) {
	if s.auditSvc == nil {
		return
	}

	metadata := map[string]any{
		"to_status": string(out.after.Status),
		"plan_id":   out.after.PlanID.String(),
	}
	if out.before.Status != "" {
		metadata["from_status"] = string(out.before.Status)
	}
	if out.before.PlanID != 0 && out.before.PlanID != out.after.PlanID {
		metadata["from_plan_id"] = out.before.PlanID.String()
	}
	if out.after.PaymentMethod != nil {
		metadata["payment_method"] = *out.after.PaymentMethod
	}
	if out.invoice != nil {
		metadata["invoice_id"] = out.invoice.ID.String()
		metadata["amount"] = out.invoice.Amount.StringFixed(2)
	}

	teamID := out.after.TeamID
	targetID := out.after.ID.String()
	action := "subscription." + string(out.event)
	if err := s.auditSvc.AuditLog(ctx, &teamID, "", nil, action, "subscription", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
