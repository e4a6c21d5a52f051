// Package simulate approves pending requests automatically so the
// out-of-band flow can be exercised without a phone. Development only.
package simulate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/verification"
)

// DefaultDelay mimics a user reaching for their phone.
const DefaultDelay = 3 * time.Second

// Approver completes an approval request.
type Approver interface {
	Approve(ctx context.Context, transactionID string) (verification.Completion, error)
}

// AutoApprover approves scheduled requests after a fixed delay.
type AutoApprover struct {
	approver Approver
	delay    time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("auto-approver closed")

// NewAutoApprover builds an auto-approver. Close must be called on shutdown.
func NewAutoApprover(approver Approver, delay time.Duration, logger *slog.Logger) *AutoApprover {
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AutoApprover{approver: approver, delay: delay, logger: logger, ctx: ctx, cancel: cancel}
}

// Schedule approves transactionID after the delay unless Close runs first.
func (a *AutoApprover) Schedule(transactionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-a.ctx.Done():
			return
		case <-timer.C:
		}
		if _, err := a.approver.Approve(a.ctx, transactionID); err != nil {
			a.logger.Warn("test approval failed", slog.String("transaction_id", transactionID), slog.String("error", err.Error()))
			return
		}
		a.logger.Info("test approval applied", slog.String("transaction_id", transactionID))
	}()
	return nil
}

// Close cancels pending approvals and waits for in-flight ones. Safe to call twice.
func (a *AutoApprover) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
	a.wg.Wait()
}

// Handler returns the POST /test-approve handler.
func (a *AutoApprover) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			TransactionID string `json:"transactionId"`
		}
		if err := c.BodyParser(&req); err != nil || req.TransactionID == "" {
			return fiber.NewError(http.StatusBadRequest, "transactionId is required")
		}
		if err := a.Schedule(req.TransactionID); err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"scheduled": true,
			"delayMs":   a.delay.Milliseconds(),
		})
	}
}
