package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
)

// Principal is the authenticated actor behind a request. TeacherID is set
// only when the user owns a teacher record; scoped decisions rely on it.
type Principal struct {
	UserID    int       `json:"user_id"`
	Role      user.Role `json:"role"`
	TeacherID null.Int  `json:"teacher_id"`
}

func (p Principal) Privileged() bool { return Privileged(p.Role) }

// Ref addresses the record whose ownership chain gates an action: the record
// itself for read/update/delete, or the parent for creations (an attendance
// row is gated through its lesson, a lesson through its class).
type Ref struct {
	Resource Resource
	ID       int
}

// Deny reasons. Logged at the boundary, not leaked verbatim to callers.
const (
	ReasonRoleForbidden = "role_forbidden"
	ReasonNotOwner      = "not_owner"
	ReasonUnknownRole   = "unknown_role"
)

// DeniedError is the only error shape an authorization failure produces.
type DeniedError struct {
	Principal Principal
	Action    Action
	Resource  Resource
	Reason    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s %s denied for user %d (%s): %s",
		e.Action, e.Resource, e.Principal.UserID, e.Principal.Role, e.Reason)
}

// IsDenied reports whether err is an authorization denial.
func IsDenied(err error) bool {
	_, ok := errors.Cause(err).(*DeniedError)
	return ok
}

// DeniedReason returns the deny reason, or "" if err is not a denial.
func DeniedReason(err error) string {
	if denied, ok := errors.Cause(err).(*DeniedError); ok {
		return denied.Reason
	}
	return ""
}

// OwnerResolver reports the user ID owning the record, walking whatever
// chain the resource needs (lesson → class → teacher → user). A null result
// means the record exists but is currently unowned. Resolvers run on the
// caller's executor so the check shares the mutation's transaction.
type OwnerResolver func(ctx context.Context, id int, exec ...core.DBExecutor) (null.Int, error)

// Scopable is implemented by query filters that can narrow themselves to a
// principal's ownership scope. ScopeToPrincipal must be applied before any
// pagination so inflating a limit cannot widen visibility.
type Scopable interface {
	ScopeToPrincipal(p Principal)
}

// Authorizer decides allow/deny for every action, combining the role
// permission table with per-resource ownership resolvers the domain
// services register at startup. It holds no request state.
type Authorizer struct {
	mu        sync.RWMutex
	resolvers map[Resource]OwnerResolver
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{resolvers: make(map[Resource]OwnerResolver)}
}

// RegisterOwnerResolver installs the ownership lookup for a resource.
// Registering twice replaces the previous resolver.
func (a *Authorizer) RegisterOwnerResolver(res Resource, resolver OwnerResolver) {
	a.mu.Lock()
	a.resolvers[res] = resolver
	a.mu.Unlock()
}

func (a *Authorizer) resolver(res Resource) (OwnerResolver, bool) {
	a.mu.RLock()
	resolver, ok := a.resolvers[res]
	a.mu.RUnlock()
	return resolver, ok
}

// Authorize decides whether p may perform act on res. owner, when given,
// names the record whose chain gates the action; without it the decision is
// role-only (creating a class or a user has no owner yet). The store lookup
// runs on exec so callers inside a transaction keep a single snapshot.
func (a *Authorizer) Authorize(ctx context.Context, p Principal, act Action, res Resource, owner *Ref, exec ...core.DBExecutor) error {
	if !p.Role.Canonical() {
		return &DeniedError{p, act, res, ReasonUnknownRole}
	}
	if !Permits(p.Role, act, res) {
		return &DeniedError{p, act, res, ReasonRoleForbidden}
	}
	if p.Privileged() || owner == nil {
		return nil
	}

	resolver, ok := a.resolver(owner.Resource)
	if !ok {
		// no way to establish ownership: fail closed
		return &DeniedError{p, act, res, ReasonNotOwner}
	}
	ownerID, err := resolver(ctx, owner.ID, exec...)
	if err != nil {
		return errors.Wrapf(err, "resolving owner of %s %d", owner.Resource, owner.ID)
	}
	if !ownerID.Valid || int(ownerID.Int) != p.UserID {
		return &DeniedError{p, act, res, ReasonNotOwner}
	}
	return nil
}

// ScopeQuery narrows filter to p's ownership scope for list operations.
// Privileged principals see everything; scoped principals get the filter
// transformed in place. This is a predicate transformation, never a gate:
// pair it with Authorize(ActionList, ...) for the role check.
func (a *Authorizer) ScopeQuery(p Principal, filter Scopable) {
	if p.Privileged() {
		return
	}
	if !p.TeacherID.Valid {
		// a scoped principal without a teacher record matches nothing
		p.TeacherID = null.IntFrom(-1)
	}
	filter.ScopeToPrincipal(p)
}
