package domain

import (
	"slices"
	"time"
)

// AnonymousUsername is the identity used when the gate is configured to
// let unauthenticated channels through.
const AnonymousUsername = "Anonymous"

// Principal is the authenticated identity bound to a connection.
// It is produced once by the authentication gate and never mutated afterwards.
type Principal struct {
	UserID    string
	Username  string
	Roles     []string
	ExpiresAt time.Time
	Anonymous bool
}

func AnonymousPrincipal() Principal {
	return Principal{Username: AnonymousUsername, Anonymous: true}
}

// Name returns the username, falling back to the anonymous identity.
func (p Principal) Name() string {
	if p.Username == "" {
		return AnonymousUsername
	}
	return p.Username
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// UserGroup is the group every connection of this principal joins on open.
func (p Principal) UserGroup() GroupID {
	return UserGroup(p.Name())
}
