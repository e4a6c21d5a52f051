// Package merchant resolves the merchant this deployment sells for.
package merchant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownMerchant is returned when the API key matches no merchant.
var ErrUnknownMerchant = errors.New("unknown merchant api key")

// Profile is resolved once at startup and passed by value.
type Profile struct {
	APIKey string
	Label  string
}

// Directory looks merchants up by API key.
type Directory interface {
	LabelFor(ctx context.Context, apiKey string) (string, error)
}

// PostgresDirectory reads the merchants table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory builds a Postgres-backed directory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// LabelFor returns the display label of the merchant owning apiKey.
func (d *PostgresDirectory) LabelFor(ctx context.Context, apiKey string) (string, error) {
	var label string
	err := d.db.QueryRow(ctx, `SELECT label FROM merchants WHERE api_key = $1`, apiKey).Scan(&label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownMerchant
		}
		return "", err
	}
	return label, nil
}

// StaticDirectory is an in-memory directory for tests and local runs.
type StaticDirectory map[string]string

// LabelFor returns the configured label for apiKey.
func (d StaticDirectory) LabelFor(_ context.Context, apiKey string) (string, error) {
	label, ok := d[apiKey]
	if !ok {
		return "", ErrUnknownMerchant
	}
	return label, nil
}

// Resolve finds the profile for apiKey. When allowFallback is set, a missing
// key or unknown merchant falls back to the configured label.
func Resolve(ctx context.Context, dir Directory, apiKey, fallbackLabel string, allowFallback bool) (Profile, error) {
	if apiKey == "" || dir == nil {
		if allowFallback && fallbackLabel != "" {
			return Profile{Label: fallbackLabel}, nil
		}
		return Profile{}, errors.New("merchant api key is required")
	}
	label, err := dir.LabelFor(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrUnknownMerchant) && allowFallback && fallbackLabel != "" {
			return Profile{APIKey: apiKey, Label: fallbackLabel}, nil
		}
		return Profile{}, fmt.Errorf("resolve merchant: %w", err)
	}
	return Profile{APIKey: apiKey, Label: label}, nil
}
