package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
)

type createSubscriptionRequest struct {
	TeamID        string `json:"team_id"`
	PlanID        string `json:"plan_id" binding:"required"`
	BillingCycle  string `json:"billing_cycle" binding:"omitempty,billing_cycle"`
	AutoRenew     *bool  `json:"auto_renew"`
	PaymentMethod string `json:"payment_method" binding:"omitempty,max=64"`
}

type upgradeSubscriptionRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	planID, ok := parseSnowflakeParam(req.PlanID)
	if !ok {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan_id"))
		return
	}

	teamID, err := s.resolveTeamID(c, req.TeamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if teamID == 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidTeam)
		return
	}

	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		TeamID:        teamID,
		PlanID:        planID,
		BillingCycle:  strings.TrimSpace(req.BillingCycle),
		AutoRenew:     autoRenew,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TeamID string `form:"team_id"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	teamID, err := s.resolveTeamID(c, query.TeamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		TeamID:    teamID,
		Status:    strings.TrimSpace(query.Status),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	item, ok := s.loadSubscription(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Activate)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Cancel)
}

func (s *Server) RenewSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Renew)
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	var req upgradeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	planID, ok := parseSnowflakeParam(req.PlanID)
	if !ok {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan_id"))
		return
	}

	s.transitionSubscription(c, func(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
		return s.subscriptionSvc.Upgrade(ctx, id, planID)
	})
}

func (s *Server) transitionSubscription(c *gin.Context, apply func(context.Context, snowflake.ID) (subscriptiondomain.Subscription, error)) {
	current, ok := s.loadSubscription(c)
	if !ok {
		return
	}

	updated, err := apply(c.Request.Context(), current.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// loadSubscription reads the :id subscription and checks the caller's team.
// On failure the error is already recorded on c.
func (s *Server) loadSubscription(c *gin.Context) (subscriptiondomain.Subscription, bool) {
	id, ok := parseSnowflakeParam(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return subscriptiondomain.Subscription{}, false
	}

	item, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return subscriptiondomain.Subscription{}, false
	}
	if err := ensureTeamAccess(c, item.TeamID); err != nil {
		AbortWithError(c, err)
		return subscriptiondomain.Subscription{}, false
	}
	return item, true
}

// resolveTeamID picks the team a request targets. Team-scoped actors may
// only name their own team.
func (s *Server) resolveTeamID(c *gin.Context, raw string) (snowflake.ID, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return 0, ErrUnauthorized
	}

	requested, err := parseOptionalSnowflakeID(raw)
	if err != nil {
		return 0, subscriptiondomain.ErrInvalidTeam
	}
	if requested == nil {
		return actor.TeamID, nil
	}
	if actor.TeamID != 0 && actor.TeamID != *requested {
		return 0, ErrForbidden
	}
	return *requested, nil
}
