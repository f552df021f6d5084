package authorization

import (
	"context"
	"errors"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Authorize checks whether actor, holding role within teamID, may perform
	// action on object. actor is "system" or "user:<id>"; teamID may be empty
	// for cross-team admin views.
	Authorize(ctx context.Context, actor, role, teamID, object, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
