package idproof

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/veriflow/veriflow/internal/failure"
)

// Provider is the payment-link provider that proves the purchaser controls
// the instrument.
type Provider interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (string, error)
}

// PlaidConfig configures the Plaid HTTP client.
type PlaidConfig struct {
	BaseURL    string
	ClientID   string
	Secret     string
	ClientName string
	Products   []string
	Countries  []string
	Timeout    time.Duration
}

// PlaidClient calls the Plaid link endpoints.
type PlaidClient struct {
	cfg PlaidConfig
}

// NewPlaidClient validates cfg and returns a client.
func NewPlaidClient(cfg PlaidConfig) (*PlaidClient, error) {
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.New("plaid base url, client id and secret are required")
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "VeriFlow"
	}
	if len(cfg.Products) == 0 {
		cfg.Products = []string{"auth", "identity"}
	}
	if len(cfg.Countries) == 0 {
		cfg.Countries = []string{"US"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PlaidClient{cfg: cfg}, nil
}

type plaidError struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type linkTokenResponse struct {
	LinkToken string `json:"link_token"`
	plaidError
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	plaidError
}

// CreateLinkToken creates a link token for the client user.
func (p *PlaidClient) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	payload := fiber.Map{
		"client_id":     p.cfg.ClientID,
		"secret":        p.cfg.Secret,
		"client_name":   p.cfg.ClientName,
		"user":          fiber.Map{"client_user_id": clientUserID},
		"products":      p.cfg.Products,
		"country_codes": p.cfg.Countries,
		"language":      "en",
	}
	var body linkTokenResponse
	if err := p.post(ctx, "/link/token/create", payload, &body, &body.plaidError); err != nil {
		return "", failure.Provider("create link token", err)
	}
	if body.LinkToken == "" {
		return "", failure.Provider("create link token", errors.New("empty link token"))
	}
	return body.LinkToken, nil
}

// ExchangePublicToken trades the widget's public token for an access token.
func (p *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	payload := fiber.Map{
		"client_id":    p.cfg.ClientID,
		"secret":       p.cfg.Secret,
		"public_token": publicToken,
	}
	var body exchangeResponse
	if err := p.post(ctx, "/item/public_token/exchange", payload, &body, &body.plaidError); err != nil {
		return "", failure.Provider("exchange public token", err)
	}
	if body.AccessToken == "" {
		return "", failure.Provider("exchange public token", errors.New("empty access token"))
	}
	return body.AccessToken, nil
}

func (p *PlaidClient) post(ctx context.Context, path string, payload interface{}, out interface{}, perr *plaidError) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(p.cfg.BaseURL + path).Timeout(p.cfg.Timeout).JSON(payload)
	status, _, errs := agent.Struct(out)
	if status != 0 && status != fiber.StatusOK {
		return fmt.Errorf("status %d: %s %s", status, perr.ErrorCode, perr.ErrorMessage)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StaticProvider accepts every token. Development only.
type StaticProvider struct{}

func (StaticProvider) CreateLinkToken(_ context.Context, clientUserID string) (string, error) {
	return "link-sandbox-" + clientUserID, nil
}

func (StaticProvider) ExchangePublicToken(_ context.Context, publicToken string) (string, error) {
	if publicToken == "" {
		return "", failure.Provider("exchange public token", errors.New("empty public token"))
	}
	return "access-sandbox-" + uuid.NewString(), nil
}
