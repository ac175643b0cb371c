package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/models"
	"teamdesk/services"
	"teamdesk/utils"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

type AuthController struct {
	Users  *services.UserDirectory
	Teams  *services.TeamRegistry
	Logger *logrus.Entry
}

func NewAuthController(users *services.UserDirectory, teams *services.TeamRegistry, logger *logrus.Entry) *AuthController {
	return &AuthController{Users: users, Teams: teams, Logger: logger}
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	user, err := ac.Users.Authenticate(c.UserContext(), req.Email, req.Password, services.LoginInfo{
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	if errors.Is(err, services.ErrInvalidCredentials) {
		utils.LogEvent("login_failed", map[string]interface{}{"email": strings.ToLower(req.Email), "ip": c.IP()})
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
	}
	if err != nil {
		return utils.ServiceError(c, err)
	}

	accessToken, refreshToken, err := utils.GenerateJWTToken(user)
	if err != nil {
		ac.Logger.WithError(err).Error("failed to sign tokens")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate tokens", nil)
	}
	utils.LogEvent("login", map[string]interface{}{"user_id": user.ID, "role": user.Role, "ip": c.IP()})

	setAuthCookies(c, accessToken, refreshToken)
	return c.JSON(utils.SuccessResponse(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}))
}

func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	_ = c.BodyParser(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = c.Cookies("refresh_token")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	accessToken, refreshToken, err := utils.RefreshTokens(req.RefreshToken, func(id uint) (*models.User, error) {
		return ac.Users.Get(c.UserContext(), id)
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", nil)
	}

	setAuthCookies(c, accessToken, refreshToken)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}))
}

// GetCurrentUser returns the session user; team admins also get the teams they manage
func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	managed := []uint{}
	if user.Role == models.RoleTeamAdmin {
		ids, err := ac.Teams.ManagedTeamIDs(c.UserContext(), user.ID)
		if err != nil {
			return utils.ServiceError(c, err)
		}
		managed = ids
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"user":             user,
		"managed_team_ids": managed,
	}))
}

// Logout invalidates every token issued to the user so far
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	if err := ac.Users.RevokeTokens(c.UserContext(), actor.UserID); err != nil {
		return utils.ServiceError(c, err)
	}
	c.ClearCookie("access_token", "refresh_token")
	utils.LogEvent("logout", map[string]interface{}{"user_id": actor.UserID})
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Logged out successfully"}))
}

func setAuthCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/auth",
	})
}
