package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/config"
	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/utils"
)

const userContextKey = "currentUser"

// AuthMiddleware validates the bearer token, resolves the caller's roles once and
// stores the user in context. The token is forwarded to the marketplace through
// the request's user context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := utils.ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		userID := utils.ClaimString(claims, "userId", "user_id", "id", "_id", "sub")
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token carries no user id")
		}

		user := models.User{ID: userID, Token: parts[1], Roles: ResolveRoles(claims)}
		c.Locals(userContextKey, user)
		c.SetUserContext(marketplace.WithToken(c.UserContext(), user.Token))
		return c.Next()
	}
}

// GetCurrentUser extracts the authenticated user from context.
func GetCurrentUser(c *fiber.Ctx) (models.User, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return models.User{}, false
	}

	if user, ok := value.(models.User); ok {
		return user, true
	}

	return models.User{}, false
}

// RequireRole lets the request through when the user holds any of roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetCurrentUser(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		for _, role := range roles {
			if user.Roles.Has(role) {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role")
	}
}
