package domain

import (
	"fleet-hub/errors"
	"fmt"
	"strings"
)

// GroupDelimiter separates the namespace from the identifier in the
// textual form of a GroupID. Identifiers must never contain it.
const GroupDelimiter = ":"

type GroupKind uint8

const (
	// KindAll is the reserved "every live connection" broadcast target.
	KindAll GroupKind = iota
	KindUser
	KindAgent
)

func (k GroupKind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindUser:
		return "user"
	case KindAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// GroupID is a structured broadcast target. Two groups are the same group
// only when both Kind and Name match, so User("42") and Agent("42") never collide.
type GroupID struct {
	Kind GroupKind
	Name string
}

func UserGroup(username string) GroupID {
	return GroupID{Kind: KindUser, Name: username}
}

func AgentGroup(agentID string) GroupID {
	return GroupID{Kind: KindAgent, Name: agentID}
}

func AllConnections() GroupID {
	return GroupID{Kind: KindAll}
}

// IsReserved reports whether the group is managed by the hub itself
// and cannot be joined or left explicitly.
func (g GroupID) IsReserved() bool {
	return g.Kind == KindAll
}

// Validate checks the structural rules of a group key.
func (g GroupID) Validate() error {
	switch g.Kind {
	case KindAll:
		if g.Name != "" {
			return fmt.Errorf("%w: reserved group carries no identifier", errors.ErrInvalidGroupID)
		}
		return nil
	case KindUser, KindAgent:
	default:
		return fmt.Errorf("%w: unknown kind %d", errors.ErrInvalidGroupID, g.Kind)
	}
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: empty %s identifier", errors.ErrInvalidGroupID, g.Kind)
	}
	if strings.Contains(g.Name, GroupDelimiter) {
		return fmt.Errorf("%w: %q contains %q", errors.ErrInvalidGroupID, g.Name, GroupDelimiter)
	}
	return nil
}

// String renders the group for logs only. It is never used as a map key.
func (g GroupID) String() string {
	if g.Kind == KindAll {
		return g.Kind.String()
	}
	return g.Kind.String() + GroupDelimiter + g.Name
}
