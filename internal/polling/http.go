package polling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/approval"
)

// HTTPChecker polls a remote server's check-approval endpoint.
type HTTPChecker struct {
	endpoint string
	timeout  time.Duration
}

// NewHTTPChecker targets the server at baseURL.
func NewHTTPChecker(baseURL string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/v1/check-approval",
		timeout:  timeout,
	}
}

type checkResponse struct {
	Status   string `json:"status"`
	Approved bool   `json:"approved"`
}

// Check posts the transaction id and decodes the reported status. The fiber
// client cannot be interrupted mid-request, so ctx only bounds the request
// through its deadline: the per-request timeout is clamped to it.
func (c *HTTPChecker) Check(ctx context.Context, transactionID string) (approval.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return "", context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(c.endpoint).
		Timeout(timeout).
		JSON(fiber.Map{"transactionId": transactionID})

	var body checkResponse
	code, raw, errs := agent.Struct(&body)
	if code != 0 && code != fiber.StatusOK {
		return "", fmt.Errorf("check approval: status %d: %s", code, strings.TrimSpace(string(raw)))
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("check approval: %w", errors.Join(errs...))
	}
	return approval.Status(body.Status), nil
}
