// Package approval keeps the time-bounded requests that a human must approve
// out-of-band before a high-value purchase completes.
package approval

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the state of a request as seen by readers. Only pending and
// approved are ever stored; expired and not_found are derived at read time.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExpired  Status = "expired"
	StatusNotFound Status = "not_found"
)

// IsTerminal reports whether a poller should stop on s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusExpired || s == StatusNotFound
}

var (
	// ErrNotFound indicates no request exists with the identifier.
	ErrNotFound = errors.New("approval request not found")
	// ErrExpired indicates the request passed its expiry while still pending.
	ErrExpired = errors.New("approval request expired")
	// ErrAlreadyApproved is returned by Cancel on an approved request.
	ErrAlreadyApproved = errors.New("approval request already approved")
	// ErrDuplicateID is returned by a Store when the identifier is taken.
	ErrDuplicateID = errors.New("approval request identifier already exists")
)

// Request is one out-of-band approval request.
type Request struct {
	TransactionID string
	DeviceID      string
	InstrumentKey string
	Merchant      string
	Amount        decimal.Decimal
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Status        Status
	ApprovedAt    *time.Time
}

// StatusAt derives the visible status at now. An approved request stays
// approved after its expiry.
func (r Request) StatusAt(now time.Time) Status {
	if r.Status == StatusApproved {
		return StatusApproved
	}
	if now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return StatusPending
}
