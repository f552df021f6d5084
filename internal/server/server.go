package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantbill/internal/audit"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	"github.com/smallbiznis/tenantbill/internal/authorization"
	"github.com/smallbiznis/tenantbill/internal/billingstats"
	billingstatsdomain "github.com/smallbiznis/tenantbill/internal/billingstats/domain"
	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/smallbiznis/tenantbill/internal/invoice"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	"github.com/smallbiznis/tenantbill/internal/observability"
	obsmiddleware "github.com/smallbiznis/tenantbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tenantbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tenantbill/internal/observability/tracing"
	"github.com/smallbiznis/tenantbill/internal/plan"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
	"github.com/smallbiznis/tenantbill/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP API. The domain modules it needs are included here;
// config, observability and the database come from the binary.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	authorization.Module,
	plan.Module,
	subscription.Module,
	invoice.Module,
	billingstats.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		SlowThreshold:   obsCfg.SlowRequestThreshold,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	statsSvc        billingstatsdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	StatsSvc        billingstatsdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.handler"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		statsSvc:        p.StatsSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorRequired(true))

	// -------- Plans --------
	api.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
	api.GET("/plans/:id", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlanByID)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	api.GET("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/activate", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionActivate), s.ActivateSubscription)
	api.POST("/subscriptions/:id/cancel", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	api.POST("/subscriptions/:id/renew", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionRenew), s.RenewSubscription)
	api.POST("/subscriptions/:id/upgrade", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade), s.UpgradeSubscription)
	api.GET("/subscriptions/:id/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListSubscriptionInvoices)

	// -------- Invoices --------
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.POST("/invoices/:id/pay", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.PayInvoice)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.ActorRequired(false))

	admin.GET("/subscription-stats", s.authorize(authorization.ObjectBillingStats, authorization.ActionBillingStatsView), s.GetSubscriptionStats)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
