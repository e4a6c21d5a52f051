// Package polling implements the client side of out-of-band approval: check
// the request status on a fixed interval until it resolves or the wall-clock
// ceiling passes.
package polling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veriflow/veriflow/internal/approval"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultCeiling  = 5 * time.Minute
)

// ErrCeilingBelowTTL is returned when the ceiling could miss a late approval.
var ErrCeilingBelowTTL = errors.New("poll ceiling must not be shorter than the approval ttl")

// Checker reads the current status of an approval request.
type Checker interface {
	Check(ctx context.Context, transactionID string) (approval.Status, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, transactionID string) (approval.Status, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, transactionID string) (approval.Status, error) {
	return f(ctx, transactionID)
}

// Outcome is how a polling session ended.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeExpired   Outcome = "expired"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

// Success reports whether the purchase may proceed.
func (o Outcome) Success() bool {
	return o == OutcomeApproved
}

// Message is the text shown to the purchaser for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeApproved:
		return "Purchase approved. You're all set."
	case OutcomeExpired:
		return "The approval request expired. Please start the purchase again."
	case OutcomeNotFound:
		return "We couldn't find this approval request. Please contact support."
	case OutcomeTimedOut:
		return "We didn't receive an approval in time. Please start the purchase again."
	case OutcomeCancelled:
		return "Approval check stopped."
	default:
		return "Unknown approval outcome."
	}
}

// Result summarises a polling session.
type Result struct {
	Outcome  Outcome
	Attempts int
	Failures int
	Elapsed  time.Duration
	LastErr  error
}

// Poller drives a polling session. The zero value is not usable; use New.
type Poller struct {
	checker  Checker
	interval time.Duration
	ceiling  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a poller. Non-positive durations take the defaults.
func New(checker Checker, interval, ceiling time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{checker: checker, interval: interval, ceiling: ceiling, logger: logger, now: time.Now}
}

// ValidateCeiling checks that ceiling covers the whole approval window.
func ValidateCeiling(ceiling, ttl time.Duration) error {
	if ceiling < ttl {
		return ErrCeilingBelowTTL
	}
	return nil
}

// Run checks immediately and then once per interval. A failed check counts as
// pending. The last wait is shortened so one check lands on the ceiling.
// Cancelling ctx stops the timer and no further checks are made.
func (p *Poller) Run(ctx context.Context, transactionID string) Result {
	start := p.now()
	deadline := start.Add(p.ceiling)
	var res Result

	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Elapsed = p.now().Sub(start)
		return res
	}

	for {
		if ctx.Err() != nil {
			return finish(OutcomeCancelled)
		}

		status, err := p.checker.Check(ctx, transactionID)
		res.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				return finish(OutcomeCancelled)
			}
			res.Failures++
			res.LastErr = err
			p.logger.Warn("approval check failed",
				slog.String("transaction_id", transactionID),
				slog.Int("attempt", res.Attempts),
				slog.String("error", err.Error()),
			)
		} else if status.IsTerminal() {
			return finish(terminalOutcome(status))
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return finish(OutcomeTimedOut)
		}
		wait := p.interval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(OutcomeCancelled)
		case <-timer.C:
		}
	}
}

func terminalOutcome(s approval.Status) Outcome {
	switch s {
	case approval.StatusApproved:
		return OutcomeApproved
	case approval.StatusExpired:
		return OutcomeExpired
	default:
		return OutcomeNotFound
	}
}
