// Package session models the authentication state the engine depends on.
// The provider is an injected capability, not an ambient singleton, so tests
// can drive sign-in transitions deterministically.
package session

import "strings"

// Role determines which reservation subset a session loads and which
// mutations it may perform.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// RoleFromString normalizes a raw role claim. Anything but "driver" is a rider.
func RoleFromString(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleDriver)) {
		return RoleDriver
	}
	return RoleRider
}

// User is an authenticated identity. A nil *User means signed out.
type User struct {
	ID   string
	Role Role
}

// Provider exposes the current authentication state and change notifications.
type Provider interface {
	// Current returns the signed-in user, or nil.
	Current() *User
	// OnChange registers fn for auth transitions; fn receives nil on
	// sign-out. The returned func removes the registration.
	OnChange(fn func(*User)) (remove func())
}
