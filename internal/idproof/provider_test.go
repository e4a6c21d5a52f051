package idproof

import (
	"context"
	"net"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/failure"
)

func startPlaid(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/link/token/create", func(c *fiber.Ctx) error {
		var body struct {
			ClientID string `json:"client_id"`
			User     struct {
				ClientUserID string `json:"client_user_id"`
			} `json:"user"`
		}
		if err := c.BodyParser(&body); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"link_token": "link-" + body.User.ClientUserID})
	})
	app.Post("/item/public_token/exchange", func(c *fiber.Ctx) error {
		var body struct {
			PublicToken string `json:"public_token"`
		}
		if err := c.BodyParser(&body); err != nil {
			return err
		}
		if body.PublicToken != "public-ok" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error_code":    "INVALID_PUBLIC_TOKEN",
				"error_message": "provided public token is in an invalid format",
			})
		}
		return c.JSON(fiber.Map{"access_token": "access-1", "item_id": "item-1"})
	})
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestPlaidClient(t *testing.T) {
	client, err := NewPlaidClient(PlaidConfig{BaseURL: startPlaid(t) + "/", ClientID: "cid", Secret: "sec"})
	require.NoError(t, err)
	ctx := context.Background()

	token, err := client.CreateLinkToken(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "link-dev-1", token)

	access, err := client.ExchangePublicToken(ctx, "public-ok")
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)

	_, err = client.ExchangePublicToken(ctx, "public-bad")
	assert.ErrorIs(t, err, failure.ErrProvider)
	assert.Contains(t, err.Error(), "INVALID_PUBLIC_TOKEN")
}

func TestNewPlaidClientRequiresCredentials(t *testing.T) {
	_, err := NewPlaidClient(PlaidConfig{BaseURL: "https://sandbox.plaid.com"})
	assert.Error(t, err)
}
