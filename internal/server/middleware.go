package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantbill/internal/authorization"
	obscontext "github.com/smallbiznis/tenantbill/internal/observability/context"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderTeamID    = "X-Team-ID"

	contextActorKey = "actor"
)

// ActorRequired resolves the calling actor from the gateway headers. When
// requireTeam is set, user actors must name the team they act for.
func (s *Server) ActorRequired(requireTeam bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := actorFromHeaders(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if requireTeam && !actor.IsSystem() && actor.TeamID == 0 {
			AbortWithError(c, newValidationError("team_id", "invalid_team", "X-Team-ID header is required"))
			return
		}

		ctx := c.Request.Context()
		ctx = obscontext.WithActor(ctx, actor.Type(), actor.ID)
		if actor.TeamID != 0 {
			ctx = obscontext.WithTeamID(ctx, actor.TeamID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

func actorFromHeaders(c *gin.Context) (Actor, error) {
	raw := strings.TrimSpace(c.GetHeader(HeaderActorID))
	if raw == "" {
		return Actor{}, ErrUnauthorized
	}

	actor := Actor{
		Subject: raw,
		Role:    strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
	}
	switch {
	case raw == authorization.ActorSystem:
		actor.ID = authorization.ActorSystem
	case strings.HasPrefix(raw, "user:"):
		userID, err := snowflake.ParseString(strings.TrimPrefix(raw, "user:"))
		if err != nil || userID <= 0 {
			return Actor{}, authorization.ErrInvalidActor
		}
		actor.ID = userID.String()
	default:
		return Actor{}, authorization.ErrInvalidActor
	}

	teamID, err := parseOptionalSnowflakeID(c.GetHeader(HeaderTeamID))
	if err != nil {
		return Actor{}, newValidationError("team_id", "invalid_team", "invalid X-Team-ID header")
	}
	if teamID != nil {
		actor.TeamID = *teamID
	}
	return actor, nil
}
