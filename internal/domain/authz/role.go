package authz

import (
	"fmt"
	"strings"
)

// Role is the role code carried by the identity source
type Role string

const (
	RoleEmployee      Role = "fun"
	RoleManager       Role = "ger"
	RoleManagerAdmin  Role = "admger"
	RoleDirector      Role = "dir"
	RoleDirectorAdmin Role = "admdir"
	RoleEmployeeAdmin Role = "admfun"
)

// ParseRole normalizes a role code. An empty code means plain employee.
func ParseRole(code string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(code)))
	if r == "" {
		return RoleEmployee, nil
	}
	switch r {
	case RoleEmployee, RoleManager, RoleManagerAdmin, RoleDirector, RoleDirectorAdmin, RoleEmployeeAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role code %q", code)
}

// CanApprove reports whether the role belongs to an approval tier at all.
// Employee roles never approve, even when listed on a requisition.
func (r Role) CanApprove() bool {
	switch r {
	case RoleManager, RoleManagerAdmin, RoleDirector, RoleDirectorAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role is an administrative variant
func (r Role) IsAdmin() bool {
	return strings.HasPrefix(string(r), "adm")
}

// String returns the role code
func (r Role) String() string {
	return string(r)
}
