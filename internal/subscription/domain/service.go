package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	TeamID        snowflake.ID
	PlanID        snowflake.ID
	BillingCycle  string
	AutoRenew     bool
	PaymentMethod string
}

type ListSubscriptionRequest struct {
	TeamID    snowflake.ID
	Status    string
	PageToken string
	PageSize  int
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

// SweepResult reports what a sweep did with one candidate.
type SweepResult struct {
	Subscription Subscription
	Applied      bool
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, id snowflake.ID) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)

	Activate(ctx context.Context, id snowflake.ID) (Subscription, error)
	Cancel(ctx context.Context, id snowflake.ID) (Subscription, error)
	Renew(ctx context.Context, id snowflake.ID) (Subscription, error)
	Upgrade(ctx context.Context, id, newPlanID snowflake.ID) (Subscription, error)

	// AutoRenew and Expire are the per-row steps of the reconciliation sweeps.
	// Each re-checks its predicate under lock and reports Applied=false when
	// another worker already handled the row.
	AutoRenew(ctx context.Context, id snowflake.ID) (SweepResult, error)
	Expire(ctx context.Context, id snowflake.ID) (SweepResult, error)
}

var (
	ErrDuplicateActiveSubscription = errors.New("duplicate_active_subscription")
	ErrInvalidTransition           = errors.New("invalid_transition")
	ErrSubscriptionNotFound        = errors.New("subscription_not_found")
	ErrInvalidTeam                 = errors.New("invalid_team")
	ErrInvalidSubscription         = errors.New("invalid_subscription")
	ErrInvalidStatus               = errors.New("invalid_status")
)
