package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veriflow/veriflow/internal/config"
	"github.com/veriflow/veriflow/internal/middleware"
	"github.com/veriflow/veriflow/internal/verification"
)

// RegisterVerificationRoutes wires the purchase gate and approval endpoints.
func RegisterVerificationRoutes(r fiber.Router, h *verification.Handler, cfg config.Config, cache *redis.Client, logger *slog.Logger) {
	purchase := []fiber.Handler{}
	if cache != nil {
		purchase = append(purchase,
			middleware.PurchaseRateLimit(cache, cfg.PurchaseRateLimit, logger),
			middleware.Idempotency(cache, cfg.IdempotencyTTL, logger),
		)
	} else {
		logger.Warn("redis not configured; purchase idempotency and rate limiting disabled")
	}
	purchase = append(purchase, h.Purchase)
	r.Post("/purchase", purchase...)

	r.Post("/check-approval", h.CheckApproval)
	r.Post("/cancel-approval", h.CancelApproval)
	r.Post("/approve-transaction", middleware.RequireToken(middleware.ChannelTokenHeader, cfg.ChannelToken), h.ApproveTransaction)
}
