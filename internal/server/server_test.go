package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	auditmocks "github.com/smallbiznis/tenantbill/internal/audit/domain/mocks"
	"github.com/smallbiznis/tenantbill/internal/authorization"
	authzmocks "github.com/smallbiznis/tenantbill/internal/authorization/mocks"
	billingstatsdomain "github.com/smallbiznis/tenantbill/internal/billingstats/domain"
	statsmocks "github.com/smallbiznis/tenantbill/internal/billingstats/domain/mocks"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	invoicemocks "github.com/smallbiznis/tenantbill/internal/invoice/domain/mocks"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	planmocks "github.com/smallbiznis/tenantbill/internal/plan/domain/mocks"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	subscriptionmocks "github.com/smallbiznis/tenantbill/internal/subscription/domain/mocks"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	engine        *gin.Engine
	authz         *authzmocks.MockService
	audit         *auditmocks.MockService
	plans         *planmocks.MockService
	subscriptions *subscriptionmocks.MockService
	invoices      *invoicemocks.MockService
	stats         *statsmocks.MockService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registerValidators()

	ctrl := gomock.NewController(t)
	ts := &testServer{
		engine:        gin.New(),
		authz:         authzmocks.NewMockService(ctrl),
		audit:         auditmocks.NewMockService(ctrl),
		plans:         planmocks.NewMockService(ctrl),
		subscriptions: subscriptionmocks.NewMockService(ctrl),
		invoices:      invoicemocks.NewMockService(ctrl),
		stats:         statsmocks.NewMockService(ctrl),
	}
	ts.engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:             ts.engine,
		Log:             zap.NewNop(),
		AuthzSvc:        ts.authz,
		AuditSvc:        ts.audit,
		PlanSvc:         ts.plans,
		SubscriptionSvc: ts.subscriptions,
		InvoiceSvc:      ts.invoices,
		StatsSvc:        ts.stats,
	})
	return ts
}

var teamAdmin = map[string]string{
	HeaderActorID:   "user:10",
	HeaderActorRole: "admin",
	HeaderTeamID:    "77",
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) allow(teamID, object, action string) {
	ts.authz.EXPECT().
		Authorize(gomock.Any(), "user:10", "admin", teamID, object, action).
		Return(nil)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rec)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return payload
}

func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return data
}

func sampleSubscription(id, teamID snowflake.ID, status subscriptiondomain.SubscriptionStatus) subscriptiondomain.Subscription {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return subscriptiondomain.Subscription{
		ID:          id,
		TeamID:      teamID,
		PlanID:      5,
		Status:      status,
		StartedAt:   now,
		EndsAt:      now.AddDate(0, 0, 30),
		RenewalDate: now.AddDate(0, 0, 30),
		TotalPaid:   decimal.Zero,
		IsAutoRenew: true,
	}
}

func TestActorHeadersAreRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorOf(t, rec)["type"])

	rec = ts.do(http.MethodGet, "/api/plans", "", map[string]string{HeaderActorID: "robot"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/plans", "", map[string]string{HeaderActorID: "user:10", HeaderActorRole: "member"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorOf(t, rec)["type"])
}

func TestAuthorizationDenialStopsTheHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.EXPECT().
		Authorize(gomock.Any(), "user:10", "member", "77", authorization.ObjectSubscription, authorization.ActionSubscriptionCancel).
		Return(authorization.ErrForbidden)

	rec := ts.do(http.MethodPost, "/api/subscriptions/900/cancel", "", map[string]string{
		HeaderActorID:   "user:10",
		HeaderActorRole: "member",
		HeaderTeamID:    "77",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorOf(t, rec)["type"])
}

func TestListPlans(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectPlan, authorization.ActionPlanView)
	ts.plans.EXPECT().
		List(gomock.Any(), plandomain.ListPlanRequest{ActiveOnly: true, SortBy: "price"}).
		Return([]plandomain.Plan{{ID: 5, Code: "pro", Name: "Pro", Price: decimal.NewFromInt(200), BillingCycle: plandomain.BillingCycleMonthly, IsActive: true}}, nil)

	rec := ts.do(http.MethodGet, "/api/plans?active=true&sort_by=price", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data, ok := decodeBody(t, rec)["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "pro", data[0].(map[string]any)["code"])
}

func TestGetPlanNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectPlan, authorization.ActionPlanView)
	ts.plans.EXPECT().GetByID(gomock.Any(), snowflake.ID(404)).Return(plandomain.Plan{}, plandomain.ErrPlanNotFound)

	rec := ts.do(http.MethodGet, "/api/plans/404", "", teamAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSubscriptionDefaultsToActorTeam(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionCreate)
	ts.subscriptions.EXPECT().
		Create(gomock.Any(), subscriptiondomain.CreateSubscriptionRequest{
			TeamID:        77,
			PlanID:        5,
			BillingCycle:  "yearly",
			AutoRenew:     true,
			PaymentMethod: "card",
		}).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusTrial), nil)

	rec := ts.do(http.MethodPost, "/api/subscriptions", `{"plan_id":"5","billing_cycle":"yearly","payment_method":" card "}`, teamAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := dataOf(t, rec)
	assert.Equal(t, "900", data["id"])
	assert.Equal(t, "trial", data["status"])
}

func TestCreateSubscriptionValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown cycle", `{"plan_id":"5","billing_cycle":"weekly"}`, "billing_cycle"},
		{"missing plan", `{"billing_cycle":"monthly"}`, "plan_id"},
		{"malformed plan", `{"plan_id":"abc"}`, "plan_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionCreate)

			rec := ts.do(http.MethodPost, "/api/subscriptions", tc.body, teamAdmin)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			payload := errorOf(t, rec)
			errs, ok := payload["errors"].([]any)
			require.True(t, ok)
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.field, errs[0].(map[string]any)["field"])
		})
	}
}

func TestCreateSubscriptionForOtherTeamIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionCreate)

	rec := ts.do(http.MethodPost, "/api/subscriptions", `{"team_id":"88","plan_id":"5"}`, teamAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSubscriptionConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionCreate)
	ts.subscriptions.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(subscriptiondomain.Subscription{}, subscriptiondomain.ErrDuplicateActiveSubscription)

	rec := ts.do(http.MethodPost, "/api/subscriptions", `{"plan_id":"5","auto_renew":false}`, teamAdmin)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_active_subscription", errorOf(t, rec)["message"])
}

func TestListSubscriptionsScopesToActorTeam(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionView)
	ts.subscriptions.EXPECT().
		List(gomock.Any(), subscriptiondomain.ListSubscriptionRequest{TeamID: 77, Status: "active", PageSize: 10}).
		Return(subscriptiondomain.ListSubscriptionResponse{
			PageInfo:      pagination.PageInfo{HasMore: true, NextPageToken: "next"},
			Subscriptions: []subscriptiondomain.Subscription{sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive)},
		}, nil)

	rec := ts.do(http.MethodGet, "/api/subscriptions?status=active&page_size=10", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	pageInfo := body["page_info"].(map[string]any)
	assert.Equal(t, true, pageInfo["has_more"])
	assert.Equal(t, "next", pageInfo["next_page_token"])

	ts2 := newTestServer(t)
	ts2.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionView)
	rec = ts2.do(http.MethodGet, "/api/subscriptions?team_id=88", "", teamAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubscriptionOfOtherTeamIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionView)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 88, subscriptiondomain.SubscriptionStatusActive), nil)

	rec := ts.do(http.MethodGet, "/api/subscriptions/900", "", teamAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionInvalidID(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionView)

	rec := ts.do(http.MethodGet, "/api/subscriptions/not-a-number", "", teamAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := errorOf(t, rec)["errors"].([]any)
	assert.Equal(t, "invalid_id", errs[0].(map[string]any)["code"])
}

func TestRenewRejectedTransition(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionRenew)
	gomock.InOrder(
		ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
			Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusExpired), nil),
		ts.subscriptions.EXPECT().Renew(gomock.Any(), snowflake.ID(900)).
			Return(subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTransition),
	)

	rec := ts.do(http.MethodPost, "/api/subscriptions/900/renew", "", teamAdmin)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorOf(t, rec)["message"])
}

func TestUpgradeSubscription(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade)
	upgraded := sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive)
	upgraded.PlanID = 6
	gomock.InOrder(
		ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
			Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive), nil),
		ts.subscriptions.EXPECT().Upgrade(gomock.Any(), snowflake.ID(900), snowflake.ID(6)).
			Return(upgraded, nil),
	)

	rec := ts.do(http.MethodPost, "/api/subscriptions/900/upgrade", `{"plan_id":"6"}`, teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "6", dataOf(t, rec)["plan_id"])
}

func TestUpgradeToInactivePlanConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive), nil)
	ts.subscriptions.EXPECT().Upgrade(gomock.Any(), snowflake.ID(900), snowflake.ID(6)).
		Return(subscriptiondomain.Subscription{}, plandomain.ErrPlanInactive)

	rec := ts.do(http.MethodPost, "/api/subscriptions/900/upgrade", `{"plan_id":"6"}`, teamAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActivateAndCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionActivate)
	ts.allow("77", authorization.ObjectSubscription, authorization.ActionSubscriptionCancel)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusTrial), nil).Times(2)
	ts.subscriptions.EXPECT().Activate(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive), nil)
	canceled := sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusCanceled)
	canceled.IsAutoRenew = false
	ts.subscriptions.EXPECT().Cancel(gomock.Any(), snowflake.ID(900)).Return(canceled, nil)

	rec := ts.do(http.MethodPost, "/api/subscriptions/900/activate", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", dataOf(t, rec)["status"])

	rec = ts.do(http.MethodPost, "/api/subscriptions/900/cancel", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, rec)
	assert.Equal(t, "canceled", data["status"])
	assert.Equal(t, false, data["is_auto_renew"])
}

func TestListSubscriptionInvoices(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectInvoice, authorization.ActionInvoiceView)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive), nil)
	ts.invoices.EXPECT().
		ListBySubscription(gomock.Any(), invoicedomain.ListInvoiceRequest{
			Pagination:     pagination.Pagination{PageToken: "tok", PageSize: 20},
			SubscriptionID: 900,
		}).
		Return(invoicedomain.ListInvoiceResponse{
			Invoices: []invoicedomain.Invoice{{ID: 300, SubscriptionID: 900, Amount: decimal.Zero, Status: invoicedomain.InvoiceStatusPaid}},
		}, nil)

	rec := ts.do(http.MethodGet, "/api/subscriptions/900/invoices?page_token=tok", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "300", data[0].(map[string]any)["id"])
}

func TestPayInvoice(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectInvoice, authorization.ActionInvoicePay)
	paidAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ts.invoices.EXPECT().GetByID(gomock.Any(), snowflake.ID(300)).
		Return(invoicedomain.Invoice{ID: 300, SubscriptionID: 900, Amount: decimal.NewFromInt(200), Status: invoicedomain.InvoiceStatusUnpaid}, nil)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).
		Return(sampleSubscription(900, 77, subscriptiondomain.SubscriptionStatusActive), nil)
	ts.invoices.EXPECT().MarkPaid(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req invoicedomain.MarkPaidRequest) (invoicedomain.Invoice, error) {
			assert.Equal(t, snowflake.ID(300), req.InvoiceID)
			assert.Equal(t, "pay_123", req.PaymentReference)
			require.NotNil(t, req.PaidAt)
			assert.True(t, req.PaidAt.Equal(paidAt))
			ref := req.PaymentReference
			return invoicedomain.Invoice{
				ID:               300,
				SubscriptionID:   900,
				Amount:           decimal.NewFromInt(200),
				Status:           invoicedomain.InvoiceStatusPaid,
				PaidAt:           req.PaidAt,
				PaymentReference: &ref,
			}, nil
		})

	rec := ts.do(http.MethodPost, "/api/invoices/300/pay", `{"payment_reference":"pay_123","paid_at":"2025-03-01T10:00:00Z"}`, teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := dataOf(t, rec)
	assert.Equal(t, "paid", data["status"])
	assert.Equal(t, "pay_123", data["payment_reference"])
}

func TestPayInvoiceValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectInvoice, authorization.ActionInvoicePay)
	ts.allow("77", authorization.ObjectInvoice, authorization.ActionInvoicePay)

	rec := ts.do(http.MethodPost, "/api/invoices/300/pay", `{}`, teamAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := errorOf(t, rec)["errors"].([]any)
	assert.Equal(t, "payment_reference", errs[0].(map[string]any)["field"])

	rec = ts.do(http.MethodPost, "/api/invoices/300/pay", `{"payment_reference":"x","paid_at":"yesterday"}`, teamAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs = errorOf(t, rec)["errors"].([]any)
	assert.Equal(t, "paid_at", errs[0].(map[string]any)["field"])
}

func TestInvoiceOfOtherTeamIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectInvoice, authorization.ActionInvoiceView)
	ts.invoices.EXPECT().GetByID(gomock.Any(), snowflake.ID(300)).
		Return(invoicedomain.Invoice{ID: 300, SubscriptionID: 901}, nil)
	ts.subscriptions.EXPECT().GetByID(gomock.Any(), snowflake.ID(901)).
		Return(sampleSubscription(901, 88, subscriptiondomain.SubscriptionStatusActive), nil)

	rec := ts.do(http.MethodGet, "/api/invoices/300", "", teamAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSubscriptionStats(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("", authorization.ObjectBillingStats, authorization.ActionBillingStatsView)
	ts.stats.EXPECT().GetSubscriptionStats(gomock.Any()).Return(billingstatsdomain.SubscriptionStats{
		Subscriptions: billingstatsdomain.StatusCounts{Trial: 1, Active: 3},
		AutoRenewing:  2,
		Revenue30d:    decimal.RequireFromString("33.40"),
	}, nil)

	rec := ts.do(http.MethodGet, "/admin/subscription-stats", "", map[string]string{
		HeaderActorID:   "user:10",
		HeaderActorRole: "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := dataOf(t, rec)
	assert.Equal(t, "33.4", data["revenue_30d"])
	assert.Equal(t, float64(2), data["auto_renewing"])
}

func TestAdminAuditLogsScopedToTeamHeader(t *testing.T) {
	ts := newTestServer(t)
	ts.allow("77", authorization.ObjectAuditLog, authorization.ActionAuditLogView)
	ts.audit.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
			require.NotNil(t, req.TeamID)
			assert.Equal(t, snowflake.ID(77), *req.TeamID)
			assert.Equal(t, "subscription.cancel", req.Action)
			require.NotNil(t, req.StartAt)
			require.NotNil(t, req.EndAt)
			assert.True(t, req.EndAt.After(*req.StartAt))
			return auditdomain.ListAuditLogResponse{}, nil
		})

	rec := ts.do(http.MethodGet, "/admin/audit-logs?action=subscription.cancel&start_at=2025-03-01&end_at=2025-03-01", "", teamAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts2 := newTestServer(t)
	ts2.allow("77", authorization.ObjectAuditLog, authorization.ActionAuditLogView)
	rec = ts2.do(http.MethodGet, "/admin/audit-logs?team_id=88", "", teamAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorOf(t, rec)["type"])
}
