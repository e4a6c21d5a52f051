package stepup

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
)

// Handler exposes the step-up endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a step-up handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type deviceRequest struct {
	DeviceIdentity string `json:"deviceIdentity"`
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Initiate returns the authorization URL or reports an existing link.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req deviceRequest
	if err := c.BodyParser(&req); err != nil || req.DeviceIdentity == "" {
		return fiber.NewError(http.StatusBadRequest, "deviceIdentity is required")
	}
	start, err := h.service.Initiate(c.UserContext(), req.DeviceIdentity)
	if err != nil {
		return httpError(err)
	}
	if start.AlreadyLinked {
		return c.JSON(fiber.Map{"alreadyLinked": true})
	}
	return c.JSON(fiber.Map{"alreadyLinked": false, "authUrl": start.AuthURL, "state": start.State})
}

// Callback completes linking with the authorization code.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	linked, err := h.service.Complete(c.UserContext(), req.Code, req.State)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"linked":      true,
		"displayName": linked.DisplayName,
		"email":       linked.Email,
	})
}

// Status reports whether the device is linked.
func (h *Handler) Status(c *fiber.Ctx) error {
	var req deviceRequest
	if err := c.BodyParser(&req); err != nil || req.DeviceIdentity == "" {
		return fiber.NewError(http.StatusBadRequest, "deviceIdentity is required")
	}
	linked, err := h.service.Status(c.UserContext(), req.DeviceIdentity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"linked": linked})
}

// Purge removes every step-up link.
func (h *Handler) Purge(c *fiber.Ctx) error {
	n, err := h.service.Purge(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"purged": n})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(http.StatusBadRequest, "invalid or expired state")
	case errors.Is(err, identity.ErrNoVerifiedInstrument):
		return fiber.NewError(http.StatusConflict, "complete identity proof before linking")
	case errors.Is(err, failure.ErrProvider):
		return fiber.NewError(http.StatusBadGateway, "identity provider error")
	case errors.Is(err, failure.ErrInfrastructureUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
