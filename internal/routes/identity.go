package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/idproof"
	"github.com/veriflow/veriflow/internal/middleware"
	"github.com/veriflow/veriflow/internal/stepup"
)

// RegisterIdentityProofRoutes wires the identity-proof widget endpoints.
func RegisterIdentityProofRoutes(r fiber.Router, h *idproof.Handler) {
	r.Post("/identity-proof/link-token", h.LinkToken)
	r.Post("/identity-proof/complete", h.Complete)
}

// RegisterStepUpRoutes wires step-up linking and its admin purge.
func RegisterStepUpRoutes(r fiber.Router, h *stepup.Handler, adminToken string) {
	r.Post("/auth/stepup/initiate", h.Initiate)
	r.Post("/auth/stepup/callback", h.Callback)
	r.Post("/auth/stepup/status", h.Status)
	r.Post("/admin/stepup/purge", middleware.RequireToken(middleware.AdminTokenHeader, adminToken), h.Purge)
}
