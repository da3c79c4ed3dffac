package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/cakeshop/internal/models"
)

// ResolveRoles normalizes every role shape the identity provider has issued into
// one RoleSet: a "role" string, a "roles" or "authorities" list of strings or of
// objects with name/authority, comma separated strings, "ROLE_" prefixes, and
// isAdmin/isSeller flags. A caller with no recognizable role is a buyer.
func ResolveRoles(claims jwt.MapClaims) models.RoleSet {
	var set models.RoleSet
	add := func(value string) {
		if r, ok := models.ParseRole(value); ok {
			set = set.With(r)
		}
	}

	for _, key := range []string{"role", "roles", "authorities"} {
		collectRoles(claims[key], add)
	}
	if truthy(claims["isAdmin"]) {
		set = set.With(models.RoleAdmin)
	}
	if truthy(claims["isSeller"]) {
		set = set.With(models.RoleSeller)
	}

	if set == 0 {
		set = set.With(models.RoleBuyer)
	}
	return set
}

func collectRoles(value interface{}, add func(string)) {
	switch v := value.(type) {
	case string:
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(part)
		}
	case []interface{}:
		for _, item := range v {
			collectRoles(item, add)
		}
	case []string:
		for _, item := range v {
			add(item)
		}
	case map[string]interface{}:
		for _, key := range []string{"name", "authority", "role", "code"} {
			if s, ok := v[key].(string); ok {
				add(s)
			}
		}
	}
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	}
	return false
}
