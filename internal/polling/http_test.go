package polling

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/approval"
)

func serve(t *testing.T, handler fiber.Handler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/api/v1/check-approval", handler)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestHTTPCheckerDecodesStatus(t *testing.T) {
	ids := make(chan string, 1)
	base := serve(t, func(c *fiber.Ctx) error {
		var body struct {
			TransactionID string `json:"transactionId"`
		}
		if err := c.BodyParser(&body); err != nil {
			return err
		}
		ids <- body.TransactionID
		return c.JSON(fiber.Map{"status": "approved", "approved": true})
	})

	checker := NewHTTPChecker(base+"/", time.Second)
	status, err := checker.Check(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, status)
	assert.Equal(t, "tx-9", <-ids)
}

func TestHTTPCheckerReportsServerErrors(t *testing.T) {
	base := serve(t, func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "approval store unavailable")
	})

	checker := NewHTTPChecker(base, time.Second)
	_, err := checker.Check(context.Background(), "tx-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPCheckerHonoursContextDeadline(t *testing.T) {
	base := serve(t, func(c *fiber.Ctx) error {
		time.Sleep(500 * time.Millisecond)
		return c.JSON(fiber.Map{"status": "pending"})
	})

	checker := NewHTTPChecker(base, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := checker.Check(ctx, "tx-9")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	_, err = checker.Check(ctx, "tx-9")
	assert.Error(t, err)
}
