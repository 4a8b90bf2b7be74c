// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"fmt"
	"strings"
)

// Role is a position in the role hierarchy. Higher ranks inherit every
// capability of lower ranks.
type Role string

const (
	RoleEndUser    Role = "enduser"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

var roleRanks = map[Role]int{
	RoleEndUser:    0,
	RoleSupervisor: 1,
	RoleAdmin:      2,
}

// Roles returns all roles ordered by rank.
func Roles() []Role {
	return []Role{RoleEndUser, RoleSupervisor, RoleAdmin}
}

// ParseRole parses a role name. "user" is accepted for enduser and an empty
// string yields enduser.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user", "enduser":
		return RoleEndUser, nil
	case "supervisor":
		return RoleSupervisor, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Rank returns the role's position in the hierarchy, or -1 for unknown roles.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// AtLeast reports whether r ranks at least as high as min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

func (r Role) String() string {
	return string(r)
}
