package verification

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/veriflow/veriflow/internal/approval"
	"github.com/veriflow/veriflow/internal/failure"
)

// ApprovalStatus is the read and cancel side of the approval store.
type ApprovalStatus interface {
	Status(ctx context.Context, id string) (approval.Report, error)
	Cancel(ctx context.Context, id string) error
}

// Handler exposes purchase and approval endpoints.
type Handler struct {
	orchestrator *Orchestrator
	approvals    ApprovalStatus
	pollInterval time.Duration
	pollCeiling  time.Duration
}

// NewHandler constructs a verification handler.
func NewHandler(orchestrator *Orchestrator, approvals ApprovalStatus) *Handler {
	return &Handler{orchestrator: orchestrator, approvals: approvals}
}

// WithPollHints makes out-of-band directives tell the client how often and
// for how long to poll check-approval.
func (h *Handler) WithPollHints(interval, ceiling time.Duration) *Handler {
	h.pollInterval = interval
	h.pollCeiling = ceiling
	return h
}

type purchaseRequest struct {
	DeviceIdentity    string          `json:"deviceIdentity"`
	PaymentInstrument string          `json:"paymentInstrument"`
	Amount            decimal.Decimal `json:"amount"`
}

type purchaseResponse struct {
	Directive     Directive  `json:"directive"`
	TransactionID string     `json:"transactionId,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	PollEveryMs   int64      `json:"pollEveryMs,omitempty"`
	PollForMs     int64      `json:"pollForMs,omitempty"`
}

type transactionRequest struct {
	TransactionID string `json:"transactionId"`
}

// Purchase runs the verification gate for a purchase attempt.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	decision, err := h.orchestrator.Decide(c.UserContext(), Transaction{
		DeviceID:          req.DeviceIdentity,
		PaymentInstrument: req.PaymentInstrument,
		Amount:            req.Amount,
	})
	if err != nil {
		return httpError(err)
	}

	res := purchaseResponse{Directive: decision.Directive, TransactionID: decision.TransactionID}
	if !decision.ExpiresAt.IsZero() {
		expires := decision.ExpiresAt
		res.ExpiresAt = &expires
	}
	if decision.Directive == DirectiveRequireOutOfBandApproval {
		res.PollEveryMs = h.pollInterval.Milliseconds()
		res.PollForMs = h.pollCeiling.Milliseconds()
	}
	return c.Status(http.StatusOK).JSON(res)
}

// CheckApproval reports the status of an approval request.
func (h *Handler) CheckApproval(c *fiber.Ctx) error {
	id, err := transactionID(c)
	if err != nil {
		return err
	}
	report, err := h.approvals.Status(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"status":   report.Status,
		"approved": report.Approved,
	})
}

// ApproveTransaction is called by the out-of-band channel when the user approves.
func (h *Handler) ApproveTransaction(c *fiber.Ctx) error {
	id, err := transactionID(c)
	if err != nil {
		return err
	}
	done, err := h.orchestrator.Approve(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"approved":        true,
		"alreadyApproved": done.AlreadyApproved,
		"approvedAt":      done.ApprovedAt,
	})
}

// CancelApproval expires a pending approval request early.
func (h *Handler) CancelApproval(c *fiber.Ctx) error {
	id, err := transactionID(c)
	if err != nil {
		return err
	}
	if err := h.approvals.Cancel(c.UserContext(), id); err != nil {
		if errors.Is(err, approval.ErrAlreadyApproved) {
			return fiber.NewError(http.StatusConflict, "transaction already approved")
		}
		return httpError(err)
	}
	return c.JSON(fiber.Map{"cancelled": true})
}

func transactionID(c *fiber.Ctx) (string, error) {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.TransactionID == "" {
		return "", fiber.NewError(http.StatusBadRequest, "transactionId is required")
	}
	return req.TransactionID, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTransaction):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, approval.ErrExpired):
		return fiber.NewError(http.StatusGone, "approval request expired")
	case errors.Is(err, failure.ErrProvider):
		return fiber.NewError(http.StatusBadGateway, "upstream provider error")
	case errors.Is(err, failure.ErrInfrastructureUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
