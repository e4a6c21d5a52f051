package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/notification"
)

const (
	// DefaultTTL is how long a request stays approvable.
	DefaultTTL = 5 * time.Minute

	maxCreateAttempts = 3
)

// CreateInput carries the purchase that needs out-of-band approval.
type CreateInput struct {
	DeviceID      string
	InstrumentKey string
	Merchant      string
	Amount        decimal.Decimal
	// Recipient addresses the push message on the approval channel.
	Recipient string
}

// Result is the outcome of a successful Approve.
type Result struct {
	Request         Request
	AlreadyApproved bool
}

// Report is the read-only view returned by Status.
type Report struct {
	TransactionID string
	Status        Status
	Approved      bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides transaction identifier allocation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newID = gen }
}

// WithNotifier sets the out-of-band channel used after Create.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service owns the approval request lifecycle.
type Service struct {
	store    Store
	ttl      time.Duration
	logger   *slog.Logger
	notifier notification.Notifier
	now      func() time.Time
	newID    func() (string, error)
}

// NewService constructs an approval service over store.
func NewService(store Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		notifier: notification.NewLoggerNotifier(logger),
		now:      time.Now,
		newID:    newTransactionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create persists a pending request and pushes it to the approval channel.
// A failed push is logged; the request remains approvable.
func (s *Service) Create(ctx context.Context, in CreateInput) (Request, error) {
	if in.DeviceID == "" || in.InstrumentKey == "" {
		return Request{}, errors.New("device identity and payment instrument are required")
	}

	var (
		req Request
		err error
	)
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		req, err = s.insert(ctx, in)
		if !errors.Is(err, ErrDuplicateID) {
			break
		}
		s.logger.Warn("approval id collision", slog.String("transaction_id", req.TransactionID), slog.Int("attempt", attempt))
	}
	if err != nil {
		return Request{}, failure.Unavailable("create approval request", err)
	}

	msg := notification.Message{
		Kind:        notification.KindApprovalRequested,
		Destination: in.Recipient,
		Reference:   req.TransactionID,
		Body:        fmt.Sprintf("Approve purchase of %s at %s", req.Amount.StringFixed(2), req.Merchant),
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("approval push failed",
			slog.String("transaction_id", req.TransactionID),
			slog.String("error", err.Error()),
		)
	}
	return req, nil
}

func (s *Service) insert(ctx context.Context, in CreateInput) (Request, error) {
	id, err := s.newID()
	if err != nil {
		return Request{}, fmt.Errorf("allocate transaction id: %w", err)
	}
	now := s.now().UTC()
	req := Request{
		TransactionID: id,
		DeviceID:      in.DeviceID,
		InstrumentKey: in.InstrumentKey,
		Merchant:      in.Merchant,
		Amount:        in.Amount,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		Status:        StatusPending,
	}
	if err := s.store.Insert(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}

// Approve marks the request approved. Approving an approved request succeeds
// again and keeps the original approval time.
func (s *Service) Approve(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, ErrNotFound
	}
	req, already, err := s.store.Approve(ctx, id, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
			return Result{}, err
		}
		return Result{}, failure.Unavailable("approve request", err)
	}
	if !already {
		s.logger.Info("approval granted", slog.String("transaction_id", id))
	}
	return Result{Request: req, AlreadyApproved: already}, nil
}

// Status reports the visible state of the request without modifying it.
func (s *Service) Status(ctx context.Context, id string) (Report, error) {
	if id == "" {
		return Report{Status: StatusNotFound}, nil
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Report{TransactionID: id, Status: StatusNotFound}, nil
		}
		return Report{}, failure.Unavailable("approval status", err)
	}
	status := req.StatusAt(s.now())
	return Report{
		TransactionID: id,
		Status:        status,
		Approved:      status == StatusApproved,
		CreatedAt:     req.CreatedAt,
		ExpiresAt:     req.ExpiresAt,
	}, nil
}

// Check returns only the status, satisfying polling checkers.
func (s *Service) Check(ctx context.Context, id string) (Status, error) {
	report, err := s.Status(ctx, id)
	if err != nil {
		return "", err
	}
	return report.Status, nil
}

// Cancel expires a pending request immediately.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	if err := s.store.Expire(ctx, id, s.now().UTC().Add(-time.Millisecond)); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyApproved) {
			return err
		}
		return failure.Unavailable("cancel request", err)
	}
	s.logger.Info("approval cancelled", slog.String("transaction_id", id))
	return nil
}

// PurgeExpired deletes requests that expired more than retention ago.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, failure.Unavailable("purge approval requests", err)
	}
	return n, nil
}

// RunJanitor purges expired requests every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, every, retention time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx, retention)
			if err != nil {
				s.logger.Warn("approval purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("approval requests purged", slog.Int64("count", n))
			}
		}
	}
}
