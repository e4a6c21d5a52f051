package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veriflow/veriflow/internal/polling"
)

const (
	defaultAppName          = "VeriFlow"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultThreshold        = "500"
	defaultApprovalTTL      = 5 * time.Minute
	defaultRetention        = time.Hour
	defaultJanitorInterval  = 10 * time.Minute
	defaultPollInterval     = 2 * time.Second
	defaultPollCeiling      = 5 * time.Minute
	defaultLookupTimeout    = 3 * time.Second
	defaultTestApproveDelay = 3 * time.Second
	defaultPurchaseRate     = 30
	defaultMerchantLabel    = "VeriFlow Demo Store"

	devInstrumentSecret = "dev-instrument-secret"
	devStateSecret      = "dev-stepup-state-secret"
	devChannelToken     = "dev-channel-token"
)

// Approval store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StepUp configures the step-up identity provider.
type StepUp struct {
	Provider     string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	StateSecret  string
}

// IDProof configures the identity-proof provider.
type IDProof struct {
	Provider      string
	PlaidBaseURL  string
	PlaidClientID string
	PlaidSecret   string
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	Env            string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	HighValueThreshold    decimal.Decimal
	IdentityLookupTimeout time.Duration

	ApprovalBackend   string
	ApprovalTTL       time.Duration
	ApprovalRetention time.Duration
	JanitorInterval   time.Duration
	PollInterval      time.Duration
	PollCeiling       time.Duration

	MerchantAPIKey string
	MerchantLabel  string

	InstrumentSecret string
	ChannelToken     string
	AdminToken       string

	StepUp  StepUp
	IDProof IDProof

	KafkaBrokers      []string
	PurchaseRateLimit int

	EnableTestApproval bool
	TestApprovalDelay  time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		Env:              strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		MerchantAPIKey:   os.Getenv("MERCHANT_API_KEY"),
		MerchantLabel:    getEnv("MERCHANT_LABEL", defaultMerchantLabel),
		InstrumentSecret: os.Getenv("INSTRUMENT_SECRET"),
		ChannelToken:     os.Getenv("APPROVAL_CHANNEL_TOKEN"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		ApprovalBackend:  strings.ToLower(os.Getenv("APPROVAL_BACKEND")),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		StepUp: StepUp{
			Provider:     strings.ToLower(getEnv("STEPUP_PROVIDER", "static")),
			AuthURL:      os.Getenv("STEPUP_AUTH_URL"),
			TokenURL:     os.Getenv("STEPUP_TOKEN_URL"),
			ProfileURL:   getEnv("STEPUP_PROFILE_URL", "https://graph.microsoft.com/v1.0/me"),
			ClientID:     os.Getenv("STEPUP_CLIENT_ID"),
			ClientSecret: os.Getenv("STEPUP_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("STEPUP_REDIRECT_URL"),
			Scopes:       strings.Fields(getEnv("STEPUP_SCOPES", "openid profile email offline_access User.Read")),
			StateSecret:  os.Getenv("STEPUP_STATE_SECRET"),
		},
		IDProof: IDProof{
			Provider:      strings.ToLower(getEnv("IDPROOF_PROVIDER", "static")),
			PlaidBaseURL:  getEnv("PLAID_BASE_URL", "https://sandbox.plaid.com"),
			PlaidClientID: os.Getenv("PLAID_CLIENT_ID"),
			PlaidSecret:   os.Getenv("PLAID_SECRET"),
		},
	}

	var err error
	durations := []struct {
		dst              *time.Duration
		secondsVar, dVar string
		fallback         time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.ApprovalTTL, "APPROVAL_TTL_SECONDS", "APPROVAL_TTL", defaultApprovalTTL},
		{&cfg.ApprovalRetention, "APPROVAL_RETENTION_SECONDS", "APPROVAL_RETENTION", defaultRetention},
		{&cfg.JanitorInterval, "APPROVAL_JANITOR_INTERVAL_SECONDS", "APPROVAL_JANITOR_INTERVAL", defaultJanitorInterval},
		{&cfg.PollInterval, "POLL_INTERVAL_SECONDS", "POLL_INTERVAL", defaultPollInterval},
		{&cfg.PollCeiling, "POLL_CEILING_SECONDS", "POLL_CEILING", defaultPollCeiling},
		{&cfg.IdentityLookupTimeout, "IDENTITY_LOOKUP_TIMEOUT_SECONDS", "IDENTITY_LOOKUP_TIMEOUT", defaultLookupTimeout},
		{&cfg.TestApprovalDelay, "TEST_APPROVAL_DELAY_SECONDS", "TEST_APPROVAL_DELAY", defaultTestApproveDelay},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.secondsVar, d.dVar, d.fallback); err != nil {
			return Config{}, err
		}
	}

	cfg.HighValueThreshold, err = decimal.NewFromString(getEnv("HIGH_VALUE_THRESHOLD", defaultThreshold))
	if err != nil {
		return Config{}, fmt.Errorf("invalid HIGH_VALUE_THRESHOLD: %w", err)
	}
	if !cfg.HighValueThreshold.IsPositive() {
		return Config{}, fmt.Errorf("HIGH_VALUE_THRESHOLD must be positive")
	}

	cfg.PurchaseRateLimit = defaultPurchaseRate
	if v := os.Getenv("PURCHASE_RATE_LIMIT_PER_MIN"); v != "" {
		if cfg.PurchaseRateLimit, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid PURCHASE_RATE_LIMIT_PER_MIN: %w", err)
		}
	}

	if v := os.Getenv("ENABLE_TEST_APPROVAL"); v != "" {
		if cfg.EnableTestApproval, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid ENABLE_TEST_APPROVAL: %w", err)
		}
	}

	if cfg.ApprovalBackend == "" {
		cfg.ApprovalBackend = BackendMemory
		if cfg.RedisURL != "" {
			cfg.ApprovalBackend = BackendRedis
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ApprovalBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("APPROVAL_BACKEND must be one of redis, postgres, memory")
	}
	if err := polling.ValidateCeiling(c.PollCeiling, c.ApprovalTTL); err != nil {
		return fmt.Errorf("POLL_CEILING (%s) vs APPROVAL_TTL (%s): %w", c.PollCeiling, c.ApprovalTTL, err)
	}
	if c.PollInterval <= 0 || c.PollInterval > c.PollCeiling {
		return fmt.Errorf("POLL_INTERVAL must be positive and within POLL_CEILING")
	}

	if c.IsDevelopment() {
		if c.InstrumentSecret == "" {
			c.InstrumentSecret = devInstrumentSecret
		}
		if c.StepUp.StateSecret == "" {
			c.StepUp.StateSecret = devStateSecret
		}
		if c.ChannelToken == "" {
			c.ChannelToken = devChannelToken
		}
		return nil
	}

	c.EnableTestApproval = false
	if c.ApprovalBackend == BackendMemory {
		return fmt.Errorf("APPROVAL_BACKEND=memory is only allowed in development")
	}
	required := []struct{ name, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"REDIS_URL", c.RedisURL},
		{"MERCHANT_API_KEY", c.MerchantAPIKey},
		{"INSTRUMENT_SECRET", c.InstrumentSecret},
		{"STEPUP_STATE_SECRET", c.StepUp.StateSecret},
		{"APPROVAL_CHANNEL_TOKEN", c.ChannelToken},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must be set", r.name)
		}
	}
	return nil
}

// IsDevelopment reports whether relaxed local defaults apply.
func (c Config) IsDevelopment() bool {
	switch c.Env {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// TestApprovalEnabled reports whether /test-approve may be registered.
func (c Config) TestApprovalEnabled() bool {
	return c.IsDevelopment() && c.EnableTestApproval
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers the integer seconds variable over the Go duration one.
func durationEnv(secondsVar, durationVar string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationVar, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
