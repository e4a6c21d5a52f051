// Package idproof runs the identity-proof flow that creates verified users.
package idproof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
	"github.com/veriflow/veriflow/internal/instrument"
)

// ErrInvalidInput is returned for a malformed completion request.
var ErrInvalidInput = errors.New("invalid identity proof request")

// Recorder stores verified users.
type Recorder interface {
	RecordVerifiedUser(ctx context.Context, user identity.VerifiedUser) (identity.VerifiedUser, error)
}

// Fingerprinter turns a raw card number into its stored key.
type Fingerprinter interface {
	Identify(raw string) (instrument.Instrument, error)
}

// CompleteInput is what the client posts after the widget succeeds.
type CompleteInput struct {
	PublicToken       string
	DeviceID          string
	PaymentInstrument string
	Holder            identity.Holder
}

// Result is returned to the client after a completed proof.
type Result struct {
	FirstTimeUser  bool
	InstrumentMask string
}

// Service runs the identity-proof flow.
type Service struct {
	provider     Provider
	users        Recorder
	fingerprints Fingerprinter
	logger       *slog.Logger
}

// NewService wires the identity-proof flow.
func NewService(provider Provider, users Recorder, fingerprints Fingerprinter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, users: users, fingerprints: fingerprints, logger: logger}
}

// LinkToken returns a token for the provider widget.
func (s *Service) LinkToken(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: device identity is required", ErrInvalidInput)
	}
	token, err := s.provider.CreateLinkToken(ctx, deviceID)
	if err != nil {
		return "", asProviderError("create link token", err)
	}
	return token, nil
}

// Complete exchanges the public token and records the verified pair. The
// first-time flag comes from the same write that stores the record.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (Result, error) {
	if in.DeviceID == "" || in.PublicToken == "" {
		return Result{}, fmt.Errorf("%w: device identity and public token are required", ErrInvalidInput)
	}
	inst, err := s.fingerprints.Identify(in.PaymentInstrument)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	accessToken, err := s.provider.ExchangePublicToken(ctx, in.PublicToken)
	if err != nil {
		return Result{}, asProviderError("exchange public token", err)
	}

	user, err := s.users.RecordVerifiedUser(ctx, identity.VerifiedUser{
		DeviceID:       in.DeviceID,
		InstrumentKey:  inst.Key,
		InstrumentMask: inst.Mask,
		Holder:         in.Holder,
		ProofToken:     accessToken,
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("identity proof recorded",
		slog.String("device_id", in.DeviceID),
		slog.String("instrument", inst.Mask),
		slog.Bool("first_time", user.FirstTime),
	)
	return Result{FirstTimeUser: user.FirstTime, InstrumentMask: inst.Mask}, nil
}

func asProviderError(op string, err error) error {
	if errors.Is(err, failure.ErrProvider) {
		return err
	}
	return failure.Provider(op, err)
}
