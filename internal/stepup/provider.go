package stepup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/veriflow/internal/failure"
)

// Tokens is the result of an authorization code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Profile is the account the user signed in with.
type Profile struct {
	Subject     string
	DisplayName string
	Email       string
}

// Provider is the identity provider that owns the approval channel.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Tokens, error)
	Profile(ctx context.Context, accessToken string) (Profile, error)
}

// OAuthConfig configures an authorization-code provider.
type OAuthConfig struct {
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// OAuthProvider talks to an OAuth2 authorization server over HTTP.
type OAuthProvider struct {
	cfg OAuthConfig
}

// NewOAuthProvider validates cfg and returns a provider.
func NewOAuthProvider(cfg OAuthConfig) (*OAuthProvider, error) {
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.ProfileURL == "" {
		return nil, errors.New("step-up provider urls are required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("step-up client credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OAuthProvider{cfg: cfg}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", p.cfg.ClientID)
	v.Set("redirect_uri", p.cfg.RedirectURL)
	v.Set("response_mode", "query")
	v.Set("scope", strings.Join(p.cfg.Scopes, " "))
	v.Set("state", state)

	sep := "?"
	if strings.Contains(p.cfg.AuthURL, "?") {
		sep = "&"
	}
	return p.cfg.AuthURL + sep + v.Encode()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange trades an authorization code for tokens.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Tokens, error) {
	if err := ctx.Err(); err != nil {
		return Tokens{}, err
	}
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("grant_type", "authorization_code")
	args.Set("code", code)
	args.Set("redirect_uri", p.cfg.RedirectURL)
	args.Set("client_id", p.cfg.ClientID)
	args.Set("client_secret", p.cfg.ClientSecret)
	args.Set("scope", strings.Join(p.cfg.Scopes, " "))

	agent := fiber.Post(p.cfg.TokenURL).Timeout(p.cfg.Timeout).Form(args)

	var body tokenResponse
	status, _, errs := agent.Struct(&body)
	if len(errs) > 0 {
		return Tokens{}, failure.Provider("exchange code", errors.Join(errs...))
	}
	if status != fiber.StatusOK || body.Error != "" {
		return Tokens{}, failure.Provider("exchange code",
			fmt.Errorf("status %d: %s %s", status, body.Error, body.ErrorDescription))
	}
	return Tokens{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

type profileResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Profile fetches the signed-in account.
func (p *OAuthProvider) Profile(ctx context.Context, accessToken string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	agent := fiber.Get(p.cfg.ProfileURL).Timeout(p.cfg.Timeout)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)

	var body profileResponse
	status, _, errs := agent.Struct(&body)
	if status != 0 && status != fiber.StatusOK {
		return Profile{}, failure.Provider("fetch profile", fmt.Errorf("status %d", status))
	}
	if len(errs) > 0 {
		return Profile{}, failure.Provider("fetch profile", errors.Join(errs...))
	}
	if body.ID == "" {
		return Profile{}, failure.Provider("fetch profile", errors.New("profile has no id"))
	}
	email := body.Mail
	if email == "" {
		email = body.UserPrincipalName
	}
	return Profile{Subject: body.ID, DisplayName: body.DisplayName, Email: email}, nil
}

// StaticProvider completes every flow locally. Development only.
type StaticProvider struct {
	// BaseURL is where AuthCodeURL points the browser.
	BaseURL string
}

func (p StaticProvider) AuthCodeURL(state string) string {
	base := p.BaseURL
	if base == "" {
		base = "http://localhost:8080/stepup/sandbox"
	}
	return base + "?state=" + url.QueryEscape(state)
}

func (StaticProvider) Exchange(_ context.Context, code string) (Tokens, error) {
	if code == "" {
		return Tokens{}, failure.Provider("exchange code", errors.New("empty authorization code"))
	}
	return Tokens{AccessToken: "sandbox-access-" + code, RefreshToken: "sandbox-refresh-" + code}, nil
}

func (StaticProvider) Profile(_ context.Context, accessToken string) (Profile, error) {
	id := strings.TrimPrefix(accessToken, "sandbox-access-")
	return Profile{Subject: "sandbox-" + id, DisplayName: "Sandbox User", Email: id + "@sandbox.test"}, nil
}
