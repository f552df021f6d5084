package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ListPlanRequest struct {
	ActiveOnly bool
	SortBy     string
}

type UpsertPlanRequest struct {
	Code         string
	Name         string
	Price        decimal.Decimal
	BillingCycle BillingCycle
	Features     []string
	MaxTeams     int
	MaxUsers     int
	IsActive     bool
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (Plan, error)
	List(ctx context.Context, req ListPlanRequest) ([]Plan, error)
	EnsurePlans(ctx context.Context, reqs []UpsertPlanRequest) ([]Plan, error)
}

var (
	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrPlanInactive        = errors.New("plan_inactive")
	ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidPrice        = errors.New("invalid_price")
)
