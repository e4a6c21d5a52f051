package middleware

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const purchaseRatePrefix = "rl:purchase:"

// PurchaseRateLimit caps purchase attempts per device identity per minute,
// falling back to the client IP. It fails open when Redis is unreachable.
func PurchaseRateLimit(cache redis.UniversalClient, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			DeviceIdentity string `json:"deviceIdentity"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.DeviceIdentity)
		if subject == "" {
			subject = "ip:" + c.IP()
		}

		window := time.Now().Unix() / 60
		key := purchaseRatePrefix + subject + ":" + strconv.FormatInt(window, 10)

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("purchase rate limit unavailable", slog.String("error", err.Error()))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, 2*time.Minute)
		}

		remaining := int64(maxPerMin) - cnt
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if cnt > int64(maxPerMin) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many purchase attempts, try again later")
		}
		return c.Next()
	}
}
