package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/tenantbill/internal/clock"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	"github.com/smallbiznis/tenantbill/pkg/db/option"
	"github.com/smallbiznis/tenantbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	planCacheSize = 256
	planCacheTTL  = 5 * time.Minute
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     plandomain.Repository
	planRepo repository.Repository[plandomain.Plan]

	cache *expirable.LRU[snowflake.ID, plandomain.Plan]
	group singleflight.Group
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("plan.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		planRepo: repository.ProvideStore[plandomain.Plan](p.DB),

		cache: expirable.NewLRU[snowflake.ID, plandomain.Plan](planCacheSize, nil, planCacheTTL),
	}
}

// GetByID serves plans from a short-lived cache; concurrent misses for the
// same plan share one query.
func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (plandomain.Plan, error) {
	if id == 0 {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	if plan, ok := s.cache.Get(id); ok {
		return plan, nil
	}

	v, err, _ := s.group.Do(id.String(), func() (any, error) {
		plan, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return plandomain.Plan{}, fmt.Errorf("load plan: %w", err)
		}
		if plan == nil {
			return plandomain.Plan{}, plandomain.ErrPlanNotFound
		}
		s.cache.Add(id, *plan)
		return *plan, nil
	})
	if err != nil {
		return plandomain.Plan{}, err
	}
	return v.(plandomain.Plan), nil
}

func (s *Service) List(ctx context.Context, req plandomain.ListPlanRequest) ([]plandomain.Plan, error) {
	filter := &plandomain.Plan{}
	opts := []option.QueryOption{}
	if req.ActiveOnly {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "is_active",
			Operator: option.EQ,
			Value:    true,
		}))
	}
	sortBy := strings.TrimSpace(req.SortBy)
	if sortBy == "" {
		sortBy = "price"
	}
	opts = append(opts,
		option.WithQuerySortBy(sortBy, "price", "name", "created_at"),
		option.WithSortBy("id", false),
	)

	items, err := s.planRepo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	plans := make([]plandomain.Plan, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		plans = append(plans, *item)
	}
	return plans, nil
}

// EnsurePlans upserts catalog entries by code. Existing plans keep their ID so
// subscriptions referencing them stay valid.
func (s *Service) EnsurePlans(ctx context.Context, reqs []plandomain.UpsertPlanRequest) ([]plandomain.Plan, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	plans := make([]plandomain.Plan, 0, len(reqs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, req := range reqs {
			plan, err := s.upsert(ctx, tx, req)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Purge()
	s.log.Info("plan catalog ensured", zap.Int("plans", len(plans)))
	return plans, nil
}

func (s *Service) upsert(ctx context.Context, tx *gorm.DB, req plandomain.UpsertPlanRequest) (plandomain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidPlan
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidPlan
	}
	if req.Price.IsNegative() {
		return plandomain.Plan{}, plandomain.ErrInvalidPrice
	}
	if !req.BillingCycle.Valid() {
		return plandomain.Plan{}, plandomain.ErrInvalidBillingCycle
	}

	now := s.clock.Now()
	existing, err := s.repo.FindByCode(ctx, tx, code)
	if err != nil {
		return plandomain.Plan{}, err
	}

	plan := plandomain.Plan{
		Code:         code,
		Name:         name,
		Price:        req.Price.Round(2),
		BillingCycle: req.BillingCycle,
		Features:     plandomain.NormalizeFeatures(req.Features),
		MaxTeams:     positiveOr(req.MaxTeams, 1),
		MaxUsers:     positiveOr(req.MaxUsers, 1),
		IsActive:     req.IsActive,
		UpdatedAt:    now,
	}

	if existing == nil {
		plan.ID = s.genID.Generate()
		plan.CreatedAt = now
		if err := s.repo.Insert(ctx, tx, &plan); err != nil {
			return plandomain.Plan{}, err
		}
		return plan, nil
	}

	plan.ID = existing.ID
	plan.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, tx, &plan); err != nil {
		return plandomain.Plan{}, err
	}
	return plan, nil
}

func positiveOr(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}
