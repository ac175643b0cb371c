package middleware

import (
	"github.com/gofiber/fiber/v2"

	"teamdesk/utils"
)

// RequireRole lets the request through only when the actor holds one of roles.
// It must run after Protected.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		actor := CurrentActor(c)
		if _, ok := allowed[actor.Role]; !ok {
			utils.LogEvent("role_denied", map[string]interface{}{
				"user_id": actor.UserID,
				"role":    actor.Role,
				"path":    c.Path(),
			})
			return utils.ErrorResponse(c, fiber.StatusForbidden, "You do not have access to this resource", nil)
		}
		return c.Next()
	}
}
