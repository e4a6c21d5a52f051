package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateTransaction indicates the purchase reference was already
	// recorded and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrNotFound indicates no purchase was recorded under the reference.
	ErrNotFound = errors.New("purchase not found")
)

const (
	// StatusCompleted marks a purchase cleared by the verification gate.
	StatusCompleted = "completed"

	// ChannelStandard marks purchases allowed without extra proof.
	ChannelStandard = "standard"
	// ChannelOutOfBand marks purchases completed after out-of-band approval.
	ChannelOutOfBand = "out_of_band"
)

// Purchase is a cleared purchase handed to the downstream merchant ledger.
type Purchase struct {
	Reference     string
	DeviceID      string
	InstrumentKey string
	Merchant      string
	Amount        decimal.Decimal
	Channel       string
}

// Receipt captures the outcome of recording a purchase.
type Receipt struct {
	ID         string
	Reference  string
	Status     string
	RecordedAt time.Time
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	// RecordPurchase stores p once per reference. A repeated reference returns
	// the original receipt together with ErrDuplicateTransaction.
	RecordPurchase(ctx context.Context, p Purchase) (Receipt, error)
	Receipt(ctx context.Context, reference string) (Receipt, error)
}
