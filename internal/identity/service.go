package identity

import (
	"context"
	"errors"
	"time"

	"github.com/veriflow/veriflow/internal/failure"
)

// ErrNoVerifiedInstrument is returned when linking a device that never passed identity proof.
var ErrNoVerifiedInstrument = errors.New("device has no verified payment instrument")

// Service is the identity store boundary used by the orchestrator and the
// identity-proof and step-up callbacks.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// FindVerifiedUser looks up the pair. A missing record is reported through the
// boolean; an unreachable store is an infrastructure error.
func (s *Service) FindVerifiedUser(ctx context.Context, deviceID, instrumentKey string) (VerifiedUser, bool, error) {
	user, err := s.repo.Find(ctx, deviceID, instrumentKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return VerifiedUser{}, false, nil
		}
		return VerifiedUser{}, false, failure.Unavailable("find verified user", err)
	}
	return user, true, nil
}

// RecordVerifiedUser stores a successful identity proof. FirstTime on the
// returned record is decided by the store in the same write.
func (s *Service) RecordVerifiedUser(ctx context.Context, user VerifiedUser) (VerifiedUser, error) {
	if user.DeviceID == "" || user.InstrumentKey == "" {
		return VerifiedUser{}, errors.New("device identity and payment instrument are required")
	}
	user.VerifiedAt = s.now().UTC()
	inserted, err := s.repo.Upsert(ctx, user)
	if err != nil {
		return VerifiedUser{}, failure.Unavailable("record verified user", err)
	}
	stored, err := s.repo.Find(ctx, user.DeviceID, user.InstrumentKey)
	if err != nil {
		return VerifiedUser{}, failure.Unavailable("read verified user", err)
	}
	stored.FirstTime = inserted
	return stored, nil
}

// RecordLinkage binds the step-up credential to every verified record of the device.
// A credential without an access token leaves the device pending tokens.
func (s *Service) RecordLinkage(ctx context.Context, deviceID string, cred Credential) error {
	if deviceID == "" {
		return errors.New("device identity is required")
	}
	if cred.Subject == "" {
		return errors.New("step-up subject is required")
	}
	if cred.LinkedAt.IsZero() {
		cred.LinkedAt = s.now().UTC()
	}
	linkage := LinkageLinked
	if cred.AccessToken == "" {
		linkage = LinkagePendingTokens
	}
	n, err := s.repo.SetLinkage(ctx, deviceID, linkage, cred)
	if err != nil {
		return failure.Unavailable("record linkage", err)
	}
	if n == 0 {
		return ErrNoVerifiedInstrument
	}
	return nil
}

// IsLinked reports whether the device has completed step-up linking. A device
// still pending tokens is not linked and may initiate again.
func (s *Service) IsLinked(ctx context.Context, deviceID string) (bool, error) {
	linked, err := s.repo.IsDeviceLinked(ctx, deviceID)
	if err != nil {
		return false, failure.Unavailable("check linkage", err)
	}
	return linked, nil
}

// PurgeLinkage drops every step-up link. Administrative use only.
func (s *Service) PurgeLinkage(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeLinkage(ctx)
	if err != nil {
		return 0, failure.Unavailable("purge linkage", err)
	}
	return n, nil
}
