package runtime

import (
	"cmp"
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fleet-hub/runtime/workers"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
)

type Set map[domain.ConnectionID]struct{}

// GroupRouter is the single writer of both sides of group membership:
// group -> connections and connection -> groups.
// Reads for a fan-out copy the recipients under the read lock, so sends never
// hold the lock and a concurrent join is neither lost nor blocked by a slow client.
type GroupRouter struct {
	mu          sync.RWMutex
	sinks       map[domain.ConnectionID]contract.EventSink
	members     map[domain.GroupID]Set
	memberships map[domain.ConnectionID]map[domain.GroupID]struct{}
	fanout      *workers.EventFanout
	log         *slog.Logger
}

func NewGroupRouter(log *slog.Logger, fanout *workers.EventFanout) *GroupRouter {
	return &GroupRouter{
		sinks:       make(map[domain.ConnectionID]contract.EventSink),
		members:     make(map[domain.GroupID]Set),
		memberships: make(map[domain.ConnectionID]map[domain.GroupID]struct{}),
		fanout:      fanout,
		log:         log,
	}
}

// Register makes a connection addressable. It belongs to no group yet
// but is already part of AllConnections.
func (r *GroupRouter) Register(id domain.ConnectionID, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[id]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateSession, id)
	}
	r.sinks[id] = sink
	r.memberships[id] = make(map[domain.GroupID]struct{})
	return nil
}

// Deregister removes the connection from every group it belonged to
// and returns those groups. Unknown connections are a no-op.
func (r *GroupRouter) Deregister(id domain.ConnectionID) []domain.GroupID {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := r.memberships[id]
	for group := range groups {
		r.removeMember(group, id)
	}
	delete(r.memberships, id)
	delete(r.sinks, id)
	return sortGroups(lo.Keys(groups))
}

// Join has set semantics: joining twice leaves a single membership.
func (r *GroupRouter) Join(id domain.ConnectionID, group domain.GroupID) error {
	if err := checkJoinable(group); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	groups, ok := r.memberships[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownSession, id)
	}
	if _, ok := r.members[group]; !ok {
		r.members[group] = make(Set)
	}
	r.members[group][id] = struct{}{}
	groups[group] = struct{}{}
	return nil
}

// Leave never fails for a connection that is not a member.
func (r *GroupRouter) Leave(id domain.ConnectionID, group domain.GroupID) error {
	if err := checkJoinable(group); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	groups, ok := r.memberships[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownSession, id)
	}
	delete(groups, group)
	r.removeMember(group, id)
	return nil
}

// Send delivers the event once to every current member of the group.
// An empty or unknown group is not an error.
func (r *GroupRouter) Send(ctx context.Context, group domain.GroupID, e event.DomainEvent) contract.Delivery {
	recipients := r.recipients(group)
	if len(recipients) == 0 {
		return contract.Delivery{}
	}
	delivery := r.fanout.Fanout(ctx, recipients, e)
	r.log.Debug("Event sent to group", "group", group.String(), "event", e.Name(),
		"recipients", delivery.Recipients, "failed", delivery.Failed)
	return delivery
}

// SendTo targets exactly one connection. Failures are logged by the fan-out
// and returned for callers that care.
func (r *GroupRouter) SendTo(ctx context.Context, id domain.ConnectionID, e event.DomainEvent) error {
	r.mu.RLock()
	sink, ok := r.sinks[id]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("Send to unknown connection", "connection_id", id, "event", e.Name())
		return fmt.Errorf("%w: %s", errors.ErrUnknownSession, id)
	}
	return r.fanout.Deliver(ctx, id, sink, e)
}

func (r *GroupRouter) Members(group domain.GroupID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []domain.ConnectionID
	if group.IsReserved() {
		ids = lo.Keys(r.sinks)
	} else {
		ids = lo.Keys(r.members[group])
	}
	slices.Sort(ids)
	return ids
}

func (r *GroupRouter) Groups(id domain.ConnectionID) []domain.GroupID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortGroups(lo.Keys(r.memberships[id]))
}

// Sinks returns a copy of every registered sink.
func (r *GroupRouter) Sinks() map[domain.ConnectionID]contract.EventSink {
	return r.recipients(domain.AllConnections())
}

// GroupCount is the number of non-empty groups.
func (r *GroupRouter) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *GroupRouter) recipients(group domain.GroupID) map[domain.ConnectionID]contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if group.IsReserved() {
		res := make(map[domain.ConnectionID]contract.EventSink, len(r.sinks))
		for id, sink := range r.sinks {
			res[id] = sink
		}
		return res
	}
	members := r.members[group]
	res := make(map[domain.ConnectionID]contract.EventSink, len(members))
	for id := range members {
		if sink, ok := r.sinks[id]; ok {
			res[id] = sink
		}
	}
	return res
}

// removeMember drops empty groups. Caller holds the write lock.
func (r *GroupRouter) removeMember(group domain.GroupID, id domain.ConnectionID) {
	members, ok := r.members[group]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.members, group)
	}
}

func checkJoinable(group domain.GroupID) error {
	if err := group.Validate(); err != nil {
		return err
	}
	if group.IsReserved() {
		return fmt.Errorf("%w: %s", errors.ErrReservedGroup, group)
	}
	return nil
}

func sortGroups(groups []domain.GroupID) []domain.GroupID {
	slices.SortFunc(groups, func(a, b domain.GroupID) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return groups
}
