package models

import "strings"

// Role is one of the closed set of storefront roles.
type Role uint8

const (
	RoleBuyer Role = 1 << iota
	RoleSeller
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// ParseRole maps the many spellings the identity provider uses onto a Role.
func ParseRole(value string) (Role, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "role_")
	switch v {
	case "buyer", "user", "customer":
		return RoleBuyer, true
	case "seller", "shop", "shop_owner", "vendor":
		return RoleSeller, true
	case "admin", "administrator", "superadmin":
		return RoleAdmin, true
	}
	return 0, false
}

// RoleSet is the normalized set of roles resolved once per session.
type RoleSet uint8

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	return uint8(s)&uint8(r) != 0
}

// With returns the set including r.
func (s RoleSet) With(r Role) RoleSet {
	return RoleSet(uint8(s) | uint8(r))
}

// Names lists the roles in a stable order.
func (s RoleSet) Names() []string {
	names := make([]string, 0, 3)
	for _, r := range []Role{RoleBuyer, RoleSeller, RoleAdmin} {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return names
}

// User is the authenticated caller: marketplace user id, the bearer token to forward
// to the marketplace, and the resolved roles.
type User struct {
	ID    string
	Token string
	Roles RoleSet
}
