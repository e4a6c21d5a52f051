// Package stepup links a verified device to an identity-provider account so
// that high-value purchases can be approved out-of-band.
package stepup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
)

// Linker is the part of the identity store the step-up flow writes to.
type Linker interface {
	IsLinked(ctx context.Context, deviceID string) (bool, error)
	RecordLinkage(ctx context.Context, deviceID string, cred identity.Credential) error
	PurgeLinkage(ctx context.Context) (int64, error)
}

// Initiation tells the caller where to send the user.
type Initiation struct {
	AlreadyLinked bool
	AuthURL       string
	State         string
}

// Linked describes a completed link.
type Linked struct {
	DeviceID    string
	Subject     string
	DisplayName string
	Email       string
}

// Service runs the step-up linking flow.
type Service struct {
	linker   Linker
	provider Provider
	signer   *StateSigner
	logger   *slog.Logger
}

// NewService wires the step-up flow.
func NewService(linker Linker, provider Provider, signer *StateSigner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{linker: linker, provider: provider, signer: signer, logger: logger}
}

// Initiate starts linking unless the device already started or finished it.
func (s *Service) Initiate(ctx context.Context, deviceID string) (Initiation, error) {
	if deviceID == "" {
		return Initiation{}, errors.New("device identity is required")
	}
	linked, err := s.linker.IsLinked(ctx, deviceID)
	if err != nil {
		return Initiation{}, err
	}
	if linked {
		return Initiation{AlreadyLinked: true}, nil
	}
	state, err := s.signer.Sign(deviceID)
	if err != nil {
		return Initiation{}, err
	}
	return Initiation{AuthURL: s.provider.AuthCodeURL(state), State: state}, nil
}

// Complete verifies state, exchanges code and stores the credential for the
// device the state was issued to.
func (s *Service) Complete(ctx context.Context, code, state string) (Linked, error) {
	deviceID, err := s.signer.Verify(state)
	if err != nil {
		return Linked{}, err
	}
	if code == "" {
		return Linked{}, failure.Provider("step-up callback", errors.New("authorization code missing"))
	}

	tokens, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return Linked{}, asProviderError("exchange code", err)
	}
	profile, err := s.provider.Profile(ctx, tokens.AccessToken)
	if err != nil {
		return Linked{}, asProviderError("fetch profile", err)
	}

	if err := s.linker.RecordLinkage(ctx, deviceID, identity.Credential{
		Subject:      profile.Subject,
		DisplayName:  profile.DisplayName,
		Email:        profile.Email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}); err != nil {
		return Linked{}, err
	}

	s.logger.Info("step-up linked", slog.String("device_id", deviceID), slog.String("subject", profile.Subject))
	return Linked{DeviceID: deviceID, Subject: profile.Subject, DisplayName: profile.DisplayName, Email: profile.Email}, nil
}

// Status reports whether deviceID is linked.
func (s *Service) Status(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, errors.New("device identity is required")
	}
	return s.linker.IsLinked(ctx, deviceID)
}

// Purge removes all linkage data.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.linker.PurgeLinkage(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("step-up linkage purged", slog.Int64("records", n))
	return n, nil
}

func asProviderError(op string, err error) error {
	if errors.Is(err, failure.ErrProvider) {
		return err
	}
	return failure.Provider(op, err)
}
