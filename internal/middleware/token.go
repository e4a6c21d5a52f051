package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const (
	// ChannelTokenHeader authenticates the out-of-band approval channel.
	ChannelTokenHeader = "X-Approval-Channel-Token"
	// AdminTokenHeader authenticates administrative endpoints.
	AdminTokenHeader = "X-Admin-Token"
)

// RequireToken admits requests whose header carries token. An empty token
// closes the route entirely.
func RequireToken(header, token string) fiber.Handler {
	expected := []byte(token)
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return fiber.NewError(fiber.StatusForbidden, "endpoint disabled")
		}
		got := []byte(c.Get(header))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing "+header)
		}
		return c.Next()
	}
}
