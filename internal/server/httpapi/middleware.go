package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/smartctf/filevault/internal/server/auth"
)

const localUserID = "userID"

// requireAuth validates the bearer token and stashes the user id in the
// request locals. Requests without a valid token never reach the handler.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return errorResponse(c, fiber.StatusUnauthorized, "missing bearer token")
	}

	userID, err := auth.UserIDFromToken(token, []byte(s.cfg.SecretKey))
	if err != nil {
		return errorResponse(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(localUserID, userID)
	return c.Next()
}

func userIDFromCtx(c *fiber.Ctx) int64 {
	id, _ := c.Locals(localUserID).(int64)
	return id
}

func errorResponse(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
