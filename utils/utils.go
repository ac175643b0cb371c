package utils

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"teamdesk/config"
	"teamdesk/services"
)

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// PaginatedResponse structure for paginated results
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// ServiceError renders a service failure with the status code its kind maps to.
// Datastore details are only exposed outside production.
func ServiceError(c *fiber.Ctx, err error) error {
	var se *services.Error
	if !errors.As(err, &se) {
		LogError("unhandled_error", err, map[string]interface{}{"path": c.Path()})
		return ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error", nil)
	}

	switch se.Kind {
	case services.KindValidation, services.KindReference:
		return ErrorResponse(c, fiber.StatusBadRequest, se.Message, nil)
	case services.KindNoop:
		return ErrorResponse(c, fiber.StatusUnprocessableEntity, se.Message, nil)
	case services.KindConflict:
		return ErrorResponse(c, fiber.StatusConflict, se.Message, nil)
	case services.KindNotFound:
		return ErrorResponse(c, fiber.StatusNotFound, se.Message, nil)
	}

	LogError("persistence_error", err, map[string]interface{}{"path": c.Path(), "method": c.Method()})
	if config.AppConfig.IsProduction() {
		return ErrorResponse(c, fiber.StatusInternalServerError, se.Message, nil)
	}
	return ErrorResponse(c, fiber.StatusInternalServerError, se.Message, se.Err)
}

// ParseID reads a positive numeric route parameter
func ParseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		return 0, services.Validation("Invalid %s", param)
	}
	return uint(id), nil
}

// OptionalID reads an optional numeric query parameter
func OptionalID(c *fiber.Ctx, key string) (*uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, services.Validation("Invalid %s", key)
	}
	v := uint(id)
	return &v, nil
}

// PageParams reads page and limit query parameters with defaults
func PageParams(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", 1)
	limit = c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
