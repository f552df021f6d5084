package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantbill/internal/clock"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	"github.com/smallbiznis/tenantbill/internal/plan/domain/mocks"
	planrepository "github.com/smallbiznis/tenantbill/internal/plan/repository"
	"github.com/smallbiznis/tenantbill/internal/testutil/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, db *gorm.DB, repo plandomain.Repository) plandomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(t0),
		Repo:  repo,
	})
}

func TestGetByIDCachesPlans(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	svc := newService(t, nil, repo)

	plan := &plandomain.Plan{ID: 42, Code: "pro", Name: "Pro", Price: decimal.NewFromInt(200), IsActive: true}
	repo.EXPECT().FindByID(gomock.Any(), gomock.Any(), snowflake.ID(42)).Return(plan, nil).Times(1)

	for i := 0; i < 3; i++ {
		got, err := svc.GetByID(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "pro", got.Code)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	svc := newService(t, nil, repo)

	repo.EXPECT().FindByID(gomock.Any(), gomock.Any(), snowflake.ID(7)).Return(nil, nil)
	_, err := svc.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}

func TestGetByIDWrapsRepositoryErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	svc := newService(t, nil, repo)

	dbErr := errors.New("connection reset")
	repo.EXPECT().FindByID(gomock.Any(), gomock.Any(), snowflake.ID(9)).Return(nil, dbErr)
	_, err := svc.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, dbErr)
}

func TestEnsurePlansUpsertsByCode(t *testing.T) {
	db := sqlitedb.New(t)
	svc := newService(t, db, planrepository.Provide())
	ctx := context.Background()

	created, err := svc.EnsurePlans(ctx, []plandomain.UpsertPlanRequest{
		{Name: "Starter Plan", Price: decimal.RequireFromString("9.999"), BillingCycle: plandomain.BillingCycleMonthly, Features: []string{"api", "api", " sso "}, IsActive: true},
		{Code: "Enterprise", Name: "Enterprise", Price: decimal.NewFromInt(1200), BillingCycle: plandomain.BillingCycleYearly, MaxTeams: 10, MaxUsers: 500, IsActive: true},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "starter-plan", created[0].Code)
	assert.Equal(t, "10.00", created[0].Price.StringFixed(2))
	assert.Equal(t, 1, created[0].MaxTeams)
	assert.Equal(t, "enterprise", created[1].Code)

	updated, err := svc.EnsurePlans(ctx, []plandomain.UpsertPlanRequest{
		{Code: "starter-plan", Name: "Starter", Price: decimal.NewFromInt(12), BillingCycle: plandomain.BillingCycleMonthly, IsActive: false},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, created[0].ID, updated[0].ID)

	got, err := svc.GetByID(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Starter", got.Name)
	assert.False(t, got.IsActive)

	active, err := svc.List(ctx, plandomain.ListPlanRequest{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "enterprise", active[0].Code)

	all, err := svc.List(ctx, plandomain.ListPlanRequest{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "starter-plan", all[0].Code, "cheapest first")
}

func TestEnsurePlansRejectsInvalidInput(t *testing.T) {
	db := sqlitedb.New(t)
	svc := newService(t, db, planrepository.Provide())

	cases := []struct {
		name string
		req  plandomain.UpsertPlanRequest
		want error
	}{
		{"missing name", plandomain.UpsertPlanRequest{BillingCycle: plandomain.BillingCycleMonthly}, plandomain.ErrInvalidPlan},
		{"negative price", plandomain.UpsertPlanRequest{Name: "x", Price: decimal.NewFromInt(-1), BillingCycle: plandomain.BillingCycleMonthly}, plandomain.ErrInvalidPrice},
		{"bad cycle", plandomain.UpsertPlanRequest{Name: "x", BillingCycle: "weekly"}, plandomain.ErrInvalidBillingCycle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.EnsurePlans(context.Background(), []plandomain.UpsertPlanRequest{tc.req})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
