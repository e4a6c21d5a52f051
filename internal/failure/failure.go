// Package failure holds the error classes shared by every component that
// talks to a backing store or an external provider.
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrInfrastructureUnavailable marks a store or cache that could not be
	// reached. Callers may retry; it never means "record absent".
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")

	// ErrProvider marks a failure reported by an identity-proof or step-up
	// provider.
	ErrProvider = errors.New("provider error")
)

// Unavailable wraps err as an infrastructure failure for the named operation.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructureUnavailable, err)
}

// Provider wraps err as a provider failure for the named operation.
func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}
