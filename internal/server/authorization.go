package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantbill/internal/authorization"
)

// Actor is the caller of a request as asserted by the gateway.
type Actor struct {
	Subject string
	ID      string
	Role    string
	TeamID  snowflake.ID
}

func (a Actor) IsSystem() bool {
	return a.Subject == authorization.ActorSystem
}

func (a Actor) Type() string {
	if a.IsSystem() {
		return "system"
	}
	return "user"
}

func (a Actor) teamString() string {
	if a.TeamID == 0 {
		return ""
	}
	return a.TeamID.String()
}

// canAccessTeam reports whether the actor may see resources of teamID. The
// system actor and admins without a team scope see every team.
func (a Actor) canAccessTeam(teamID snowflake.ID) bool {
	if a.IsSystem() {
		return true
	}
	if a.TeamID == 0 {
		return a.Role == authorization.RoleAdmin
	}
	return a.TeamID == teamID
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.Subject, actor.Role, actor.teamString(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}
	value, ok := c.Get(contextActorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := value.(Actor)
	return actor, ok
}

// ensureTeamAccess hides resources of other teams behind not found.
func ensureTeamAccess(c *gin.Context, teamID snowflake.ID) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if !actor.canAccessTeam(teamID) {
		return ErrNotFound
	}
	return nil
}
