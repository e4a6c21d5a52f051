package idproof

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
)

// Handler exposes the identity-proof endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity-proof handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type linkTokenRequest struct {
	DeviceIdentity string `json:"deviceIdentity"`
}

type completeRequest struct {
	PublicToken       string          `json:"publicToken"`
	DeviceIdentity    string          `json:"deviceIdentity"`
	PaymentInstrument string          `json:"paymentInstrument"`
	Holder            identity.Holder `json:"holder"`
}

// LinkToken issues a widget link token.
func (h *Handler) LinkToken(c *fiber.Ctx) error {
	var req linkTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	token, err := h.service.LinkToken(c.UserContext(), req.DeviceIdentity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"linkToken": token})
}

// Complete records a successful identity proof.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req completeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.service.Complete(c.UserContext(), CompleteInput{
		PublicToken:       req.PublicToken,
		DeviceID:          req.DeviceIdentity,
		PaymentInstrument: req.PaymentInstrument,
		Holder:            req.Holder,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"firstTimeUser":  res.FirstTimeUser,
		"instrumentMask": res.InstrumentMask,
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, failure.ErrProvider):
		return fiber.NewError(http.StatusBadGateway, "identity proof provider error")
	case errors.Is(err, failure.ErrInfrastructureUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
