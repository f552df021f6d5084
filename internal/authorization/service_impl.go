package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/tenantbill/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan         = "plan"
	ObjectSubscription = "subscription"
	ObjectInvoice      = "invoice"
	ObjectBillingStats = "billing_stats"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionPlanView = "plan.view"

	ActionSubscriptionView      = "subscription.view"
	ActionSubscriptionCreate    = "subscription.create"
	ActionSubscriptionActivate  = "subscription.activate"
	ActionSubscriptionCancel    = "subscription.cancel"
	ActionSubscriptionRenew     = "subscription.renew"
	ActionSubscriptionUpgrade   = "subscription.upgrade"
	ActionSubscriptionAutoRenew = "subscription.auto_renew"
	ActionSubscriptionExpire    = "subscription.expire"

	ActionInvoiceView = "invoice.view"
	ActionInvoicePay  = "invoice.pay"

	ActionBillingStatsView = "billing_stats.view"
	ActionAuditLogView     = "audit_log.view"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleSystem = "system"

	ActorSystem = "system"

	globalDomain = "team:*"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, teamID, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	teamID = strings.TrimSpace(teamID)

	subject, roleName, actorType, actorID, err := resolveActor(actor, role)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, teamID, object, action)
		return err
	}

	domain := globalDomain
	if teamID != "" {
		domain = fmt.Sprintf("team:%s", teamID)
	}
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, teamID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, teamID, object, action)
	}
	return nil
}

// resolveActor maps the gateway-provided identity to a casbin subject and role.
func resolveActor(actor, role string) (string, string, string, *string, error) {
	if actor == ActorSystem {
		return actor, "role:" + RoleSystem, "system", nil, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", "", "", nil, ErrInvalidActor
	}

	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return "", "", "", nil, ErrInvalidActor
	}
	userIDStr := userID.String()

	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleMember, RoleAdmin:
	default:
		return actor, "", "user", &userIDStr, ErrInvalidRole
	}
	return actor, "role:" + role, "user", &userIDStr, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, teamID string, object string, action string) {
	s.audit(ctx, "authorization.denied", actorType, actorID, teamID, object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, teamID string, object string, action string) {
	s.audit(ctx, "authorization.granted", actorType, actorID, teamID, object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction string, actorType string, actorID *string, teamID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	var team *snowflake.ID
	if parsed, err := snowflake.ParseString(teamID); err == nil && parsed != 0 {
		team = &parsed
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, team, actorType, actorID, auditAction, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoicePay, ActionSubscriptionCancel:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectPlan, ActionPlanView},
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectInvoice, ActionInvoiceView},

		// Admin permissions
		{"role:admin", ObjectPlan, ActionPlanView},
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCreate},
		{"role:admin", ObjectSubscription, ActionSubscriptionActivate},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectSubscription, ActionSubscriptionRenew},
		{"role:admin", ObjectSubscription, ActionSubscriptionUpgrade},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoicePay},
		{"role:admin", ObjectBillingStats, ActionBillingStatsView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (scheduler and payment callbacks)
		{"role:system", ObjectPlan, ActionPlanView},
		{"role:system", ObjectSubscription, ActionSubscriptionView},
		{"role:system", ObjectSubscription, ActionSubscriptionRenew},
		{"role:system", ObjectSubscription, ActionSubscriptionAutoRenew},
		{"role:system", ObjectSubscription, ActionSubscriptionExpire},
		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoicePay},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
