package types

import (
	"fmt"
)

// Role identifies the kind of account a session is bound to.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a wire string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be 'patient', 'doctor' or 'admin'", s)
	}
	return r, nil
}

// Session is the record a token resolves to. It is stored as a single
// structured value under one key so user and role can never expire apart.
type Session struct {
	UserID uint `json:"user_id"`
	Role   Role `json:"role"`
}

// IsValidUserID reports whether id is usable as a registry key.
// Registry identities are decimal user ids or synthetic chat-guest ids.
func IsValidUserID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return false
		}
	}
	return true
}
