package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/logging"
)

func TestRequireToken(t *testing.T) {
	app := fiber.New()
	app.Post("/approve", RequireToken(ChannelTokenHeader, "s3cret"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/closed", RequireToken(AdminTokenHeader, ""), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	cases := []struct {
		path, header, value string
		want                int
	}{
		{"/approve", ChannelTokenHeader, "s3cret", fiber.StatusOK},
		{"/approve", ChannelTokenHeader, "wrong", fiber.StatusUnauthorized},
		{"/approve", "", "", fiber.StatusUnauthorized},
		{"/closed", AdminTokenHeader, "", fiber.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodPost, tc.path, nil)
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, "%s %s=%q", tc.path, tc.header, tc.value)
	}
}

func TestPurchaseRateLimitPerDevice(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	app := fiber.New()
	app.Post("/purchase", PurchaseRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	post := func(device string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/purchase", strings.NewReader(`{"deviceIdentity":"`+device+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, post("dev-1"))
	assert.Equal(t, fiber.StatusOK, post("dev-1"))
	assert.Equal(t, fiber.StatusTooManyRequests, post("dev-1"))
	assert.Equal(t, fiber.StatusOK, post("dev-2"))
}

func TestPurchaseRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = cache.Close() })
	mr.Close()

	app := fiber.New()
	app.Post("/purchase", PurchaseRateLimit(cache, 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodPost, "/purchase", strings.NewReader(`{}`))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequestIDEchoesInbound(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFrom(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get(requestIDHeader))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}
