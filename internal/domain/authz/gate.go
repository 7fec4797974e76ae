// Package authz turns an actor's identity and a requisition's assignments into
// an explicit capability set. Business code never inspects role strings directly.
package authz

import (
	"errors"
	"fmt"

	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// ErrNotAuthorized is returned when the actor lacks the capability for an action
var ErrNotAuthorized = errors.New("not authorized")

// Identity is what the identity source resolves from a session token
type Identity struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	IsMaster bool   `json:"is_master"`
}

// Context is computed once per request and passed explicitly to the coordinator
type Context struct {
	ActorID          string
	Role             Role
	IsMaster         bool
	AssignedManager  bool
	AssignedDirector bool
}

// Capabilities lists the decision paths open to an actor on one requisition
type Capabilities struct {
	CanApproveAsManager  bool `json:"can_approve_as_manager"`
	CanApproveAsDirector bool `json:"can_approve_as_director"`
	CanOverrideAsMaster  bool `json:"can_override_as_master"`
}

// NewContext derives the authorization context for an actor on a requisition
func NewContext(id Identity, req *requisition.Requisition) Context {
	return Context{
		ActorID:          id.UserID,
		Role:             id.Role,
		IsMaster:         id.IsMaster,
		AssignedManager:  req.IsManager(id.UserID),
		AssignedDirector: req.IsDirector(id.UserID),
	}
}

// CanAct is a pure function of role and assignment. The master flag adds the
// override path on top of whatever the actor's own assignment grants.
func CanAct(c Context) Capabilities {
	if c.ActorID == "" {
		return Capabilities{}
	}
	return Capabilities{
		CanApproveAsManager:  c.AssignedManager && c.Role.CanApprove(),
		CanApproveAsDirector: c.AssignedDirector && c.Role.CanApprove(),
		CanOverrideAsMaster:  c.IsMaster,
	}
}

// RequireManager fails unless the actor may decide as an assigned manager
func RequireManager(c Context) error {
	if !CanAct(c).CanApproveAsManager {
		return fmt.Errorf("%w: %s is not an assigned manager", ErrNotAuthorized, c.ActorID)
	}
	return nil
}

// RequireDirector fails unless the actor may decide as the assigned director
func RequireDirector(c Context) error {
	if !CanAct(c).CanApproveAsDirector {
		return fmt.Errorf("%w: %s is not the assigned director", ErrNotAuthorized, c.ActorID)
	}
	return nil
}

// RequireMaster fails unless the actor holds the master override
func RequireMaster(c Context) error {
	if !CanAct(c).CanOverrideAsMaster {
		return fmt.Errorf("%w: %s has no master privilege", ErrNotAuthorized, c.ActorID)
	}
	return nil
}

// CanView reports whether the actor may read the requisition: its requester,
// any assigned approver, or a master.
func CanView(c Context, req *requisition.Requisition) bool {
	return c.IsMaster || c.AssignedManager || c.AssignedDirector || (c.ActorID != "" && c.ActorID == req.RequesterID)
}
