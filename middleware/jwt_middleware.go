package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"teamdesk/models"
	"teamdesk/services"
	"teamdesk/utils"
)

// Locals keys set by Protected
const (
	LocalUser  = "user"
	LocalActor = "actor"
)

func Protected(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil || claims.Kind != utils.AccessToken {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
		}
		if !user.IsActive() {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
		}
		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token version", nil)
		}

		c.Locals(LocalUser, &user)
		c.Locals(LocalActor, services.ActorFromUser(&user))
		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(LocalUser).(*models.User)
	return user
}

// CurrentActor returns the request identity stored by Protected
func CurrentActor(c *fiber.Ctx) services.Actor {
	actor, _ := c.Locals(LocalActor).(services.Actor)
	return actor
}
