// Package verification decides which proof a purchase needs before it may
// complete and finalizes purchases approved out-of-band.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriflow/veriflow/internal/approval"
	"github.com/veriflow/veriflow/internal/events"
	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
	"github.com/veriflow/veriflow/internal/instrument"
	"github.com/veriflow/veriflow/internal/ledger"
	"github.com/veriflow/veriflow/internal/merchant"
	"github.com/veriflow/veriflow/internal/risk"
)

// Directive tells the caller what must happen next.
type Directive string

const (
	DirectiveAllowed                  Directive = "allowed"
	DirectiveRequireIdentityProof     Directive = "require_identity_proof"
	DirectiveRequireStepUpLinkage     Directive = "require_step_up_linkage"
	DirectiveRequireOutOfBandApproval Directive = "require_out_of_band_approval"
)

const (
	defaultLookupTimeout = 3 * time.Second
	defaultEventTimeout  = time.Second
)

// amountPlaces matches the NUMERIC(18,2) amount columns.
const amountPlaces = 2

// ErrInvalidTransaction is returned for malformed purchase input.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is one purchase attempt.
type Transaction struct {
	DeviceID          string
	PaymentInstrument string
	Amount            decimal.Decimal
}

// Decision is the outcome of Decide. TransactionID and ExpiresAt are set only
// for out-of-band approval; ReceiptID only for allowed purchases.
type Decision struct {
	Directive     Directive
	Tier          risk.Tier
	TransactionID string
	ExpiresAt     time.Time
	ReceiptID     string
}

// Completion is the outcome of Approve.
type Completion struct {
	TransactionID   string
	ApprovedAt      time.Time
	AlreadyApproved bool
	Receipt         ledger.Receipt
}

// UserLookup is the narrow view of the identity store used here.
type UserLookup interface {
	FindVerifiedUser(ctx context.Context, deviceID, instrumentKey string) (identity.VerifiedUser, bool, error)
}

// Approvals creates and resolves out-of-band approval requests.
type Approvals interface {
	Create(ctx context.Context, in approval.CreateInput) (approval.Request, error)
	Approve(ctx context.Context, id string) (approval.Result, error)
}

// Fingerprinter turns a raw card number into its stored key.
type Fingerprinter interface {
	Identify(raw string) (instrument.Instrument, error)
}

// Deps wires an Orchestrator.
type Deps struct {
	Users         UserLookup
	Approvals     Approvals
	Ledger        ledger.Ledger
	Fingerprints  Fingerprinter
	Classifier    risk.Classifier
	Merchant      merchant.Profile
	Events        events.Publisher
	Logger        *slog.Logger
	LookupTimeout time.Duration
	EventTimeout  time.Duration
}

// Orchestrator runs the escalation policy.
type Orchestrator struct {
	users         UserLookup
	approvals     Approvals
	ledger        ledger.Ledger
	fingerprints  Fingerprinter
	classifier    risk.Classifier
	merchant      merchant.Profile
	events        events.Publisher
	logger        *slog.Logger
	lookupTimeout time.Duration
	eventTimeout  time.Duration
	now           func() time.Time
}

// NewOrchestrator builds an orchestrator from d.
func NewOrchestrator(d Deps) *Orchestrator {
	o := &Orchestrator{
		users:         d.Users,
		approvals:     d.Approvals,
		ledger:        d.Ledger,
		fingerprints:  d.Fingerprints,
		classifier:    d.Classifier,
		merchant:      d.Merchant,
		events:        d.Events,
		logger:        d.Logger,
		lookupTimeout: d.LookupTimeout,
		eventTimeout:  d.EventTimeout,
		now:           time.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.events == nil {
		o.events = events.NewLogPublisher(o.logger)
	}
	if o.lookupTimeout <= 0 {
		o.lookupTimeout = defaultLookupTimeout
	}
	if o.eventTimeout <= 0 {
		o.eventTimeout = defaultEventTimeout
	}
	if o.classifier.Threshold.IsZero() {
		o.classifier = risk.NewClassifier(risk.DefaultThreshold)
	}
	return o
}

// Decide classifies tx and performs the side effect its tier requires. Identity
// store failures are returned as infrastructure errors and never retried here.
func (o *Orchestrator) Decide(ctx context.Context, tx Transaction) (Decision, error) {
	if tx.DeviceID == "" {
		return Decision{}, fmt.Errorf("%w: device identity is required", ErrInvalidTransaction)
	}
	if tx.Amount.IsNegative() {
		return Decision{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidTransaction)
	}
	if !tx.Amount.Equal(tx.Amount.Round(amountPlaces)) {
		return Decision{}, fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidTransaction, amountPlaces)
	}
	inst, err := o.fingerprints.Identify(tx.PaymentInstrument)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	user, err := o.lookup(ctx, tx.DeviceID, inst.Key)
	if err != nil {
		o.logger.Error("identity lookup failed",
			slog.String("device_id", tx.DeviceID),
			slog.String("error", err.Error()),
		)
		return Decision{}, err
	}

	tier := o.classifier.Classify(tx.Amount, user)
	decision := Decision{Tier: tier}

	switch tier {
	case risk.TierNewUser:
		decision.Directive = DirectiveRequireIdentityProof
	case risk.TierHighValueUnlinked:
		decision.Directive = DirectiveRequireStepUpLinkage
	case risk.TierStandard:
		receipt, err := o.record(ctx, ledger.Purchase{
			Reference:     uuid.NewString(),
			DeviceID:      tx.DeviceID,
			InstrumentKey: inst.Key,
			Merchant:      o.merchant.Label,
			Amount:        tx.Amount,
			Channel:       ledger.ChannelStandard,
		})
		if err != nil {
			return Decision{}, err
		}
		decision.Directive = DirectiveAllowed
		decision.ReceiptID = receipt.ID
	case risk.TierHighValueLinked:
		req, err := o.approvals.Create(ctx, approval.CreateInput{
			DeviceID:      tx.DeviceID,
			InstrumentKey: inst.Key,
			Merchant:      o.merchant.Label,
			Amount:        tx.Amount,
			Recipient:     user.Credential.Subject,
		})
		if err != nil {
			return Decision{}, err
		}
		decision.Directive = DirectiveRequireOutOfBandApproval
		decision.TransactionID = req.TransactionID
		decision.ExpiresAt = req.ExpiresAt
	default:
		return Decision{}, fmt.Errorf("unhandled risk tier %q", tier)
	}

	o.logger.Info("purchase decided",
		slog.String("device_id", tx.DeviceID),
		slog.String("instrument", inst.Mask),
		slog.String("amount", tx.Amount.String()),
		slog.String("tier", string(tier)),
		slog.String("directive", string(decision.Directive)),
	)
	o.publish(ctx, events.DecisionEvent{
		DeviceID:      tx.DeviceID,
		InstrumentKey: inst.Key,
		Amount:        tx.Amount.String(),
		Tier:          string(tier),
		Directive:     string(decision.Directive),
		TransactionID: decision.TransactionID,
		DecidedAt:     o.now().UTC(),
	})
	return decision, nil
}

func (o *Orchestrator) lookup(ctx context.Context, deviceID, key string) (*identity.VerifiedUser, error) {
	ctx, cancel := context.WithTimeout(ctx, o.lookupTimeout)
	defer cancel()

	user, found, err := o.users.FindVerifiedUser(ctx, deviceID, key)
	if err != nil {
		if !errors.Is(err, failure.ErrInfrastructureUnavailable) {
			err = failure.Unavailable("find verified user", err)
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

func (o *Orchestrator) record(ctx context.Context, p ledger.Purchase) (ledger.Receipt, error) {
	receipt, err := o.ledger.RecordPurchase(ctx, p)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return receipt, nil
		}
		return ledger.Receipt{}, failure.Unavailable("record purchase", err)
	}
	return receipt, nil
}

func (o *Orchestrator) publish(ctx context.Context, evt events.DecisionEvent) {
	ctx, cancel := context.WithTimeout(ctx, o.eventTimeout)
	defer cancel()
	if err := o.events.Publish(ctx, events.TopicPurchaseDecided, evt); err != nil {
		o.logger.Warn("decision event not published",
			slog.String("device_id", evt.DeviceID),
			slog.String("error", err.Error()),
		)
	}
}

// Approve resolves an out-of-band approval and records the purchase under the
// transaction id. Repeated calls succeed and record the purchase once.
func (o *Orchestrator) Approve(ctx context.Context, transactionID string) (Completion, error) {
	res, err := o.approvals.Approve(ctx, transactionID)
	if err != nil {
		return Completion{}, err
	}
	req := res.Request
	receipt, err := o.record(ctx, ledger.Purchase{
		Reference:     req.TransactionID,
		DeviceID:      req.DeviceID,
		InstrumentKey: req.InstrumentKey,
		Merchant:      req.Merchant,
		Amount:        req.Amount,
		Channel:       ledger.ChannelOutOfBand,
	})
	if err != nil {
		return Completion{}, err
	}

	out := Completion{
		TransactionID:   req.TransactionID,
		AlreadyApproved: res.AlreadyApproved,
		Receipt:         receipt,
	}
	if req.ApprovedAt != nil {
		out.ApprovedAt = *req.ApprovedAt
	}
	return out, nil
}
