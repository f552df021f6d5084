package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/smallbiznis/tenantbill/internal/plan/domain"
	"github.com/smallbiznis/tenantbill/internal/plan/repository"
	"github.com/smallbiznis/tenantbill/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(seedCatalog),
)

func seedCatalog(lc fx.Lifecycle, holder *config.BillingConfigHolder, svc domain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			reqs, err := SeedRequests(holder.Get().Plans)
			if err != nil {
				return err
			}
			_, err = svc.EnsurePlans(ctx, reqs)
			return err
		},
	})
}

// SeedRequests converts configured plans into upsert requests.
func SeedRequests(seeds []config.PlanSeed) ([]domain.UpsertPlanRequest, error) {
	reqs := make([]domain.UpsertPlanRequest, 0, len(seeds))
	for i, seed := range seeds {
		price := decimal.Zero
		if raw := strings.TrimSpace(seed.Price); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("plan seed %d price: %w", i, err)
			}
			price = parsed
		}
		cycle, err := domain.ParseBillingCycle(seed.BillingCycle)
		if err != nil {
			return nil, fmt.Errorf("plan seed %d: %w", i, err)
		}
		if cycle == "" {
			cycle = domain.BillingCycleMonthly
		}
		reqs = append(reqs, domain.UpsertPlanRequest{
			Code:         seed.Code,
			Name:         seed.Name,
			Price:        price,
			BillingCycle: cycle,
			Features:     seed.Features,
			MaxTeams:     seed.MaxTeams,
			MaxUsers:     seed.MaxUsers,
			IsActive:     !seed.Inactive,
		})
	}
	return reqs, nil
}
