// Package access holds the authenticated caller model and the role policy that
// guards pickup and chat operations.
package access

import (
	"errors"

	"scrapyard/internal/types"
)

type Role string

const (
	RoleClient Role = "client"
	RoleSeller Role = "seller"
)

var ErrAccessDenied = errors.New("access denied")

// Actor is the caller of an operation as seen by the domain services.
type Actor struct {
	ID       types.ID
	Email    string
	IsClient bool
	IsSeller bool
}

func (a Actor) Has(r Role) bool {
	switch r {
	case RoleClient:
		return a.IsClient
	case RoleSeller:
		return a.IsSeller
	}
	return false
}

// Require fails with ErrAccessDenied unless the actor is authenticated and holds role r.
func Require(a Actor, r Role) error {
	if a.ID == "" || !a.Has(r) {
		return ErrAccessDenied
	}
	return nil
}

// ParseRole accepts the path segment used by registration routes.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient:
		return RoleClient, true
	case RoleSeller:
		return RoleSeller, true
	}
	return "", false
}
