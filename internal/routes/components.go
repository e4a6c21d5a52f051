package routes

import (
	"fmt"

	"github.com/veriflow/veriflow/internal/approval"
	"github.com/veriflow/veriflow/internal/config"
	"github.com/veriflow/veriflow/internal/events"
	"github.com/veriflow/veriflow/internal/identity"
	"github.com/veriflow/veriflow/internal/idproof"
	"github.com/veriflow/veriflow/internal/instrument"
	"github.com/veriflow/veriflow/internal/ledger"
	"github.com/veriflow/veriflow/internal/notification"
	"github.com/veriflow/veriflow/internal/risk"
	"github.com/veriflow/veriflow/internal/stepup"
	"github.com/veriflow/veriflow/internal/verification"
)

// components holds the services built from Deps.
type components struct {
	identity     *identity.Service
	approvals    *approval.Service
	orchestrator *verification.Orchestrator
	stepup       *stepup.Service
	idproof      *idproof.Service
}

func buildComponents(d Deps) (*components, error) {
	var identityRepo identity.Repository
	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		ledgerBackend = ledger.NewInMemory()
	}
	identitySvc := identity.NewService(identityRepo)

	store, err := approvalStore(d)
	if err != nil {
		return nil, err
	}
	publisher := d.Events
	if publisher == nil {
		publisher = events.NewLogPublisher(d.Logger)
	}
	approvalSvc := approval.NewService(store, d.Cfg.ApprovalTTL, d.Logger,
		approval.WithNotifier(notification.NewEventNotifier(publisher)))

	fingerprints, err := instrument.NewFingerprinter(d.Cfg.InstrumentSecret)
	if err != nil {
		return nil, fmt.Errorf("instrument fingerprinter: %w", err)
	}

	orchestrator := verification.NewOrchestrator(verification.Deps{
		Users:         identitySvc,
		Approvals:     approvalSvc,
		Ledger:        ledgerBackend,
		Fingerprints:  fingerprints,
		Classifier:    risk.NewClassifier(d.Cfg.HighValueThreshold),
		Merchant:      d.Merchant,
		Events:        publisher,
		Logger:        d.Logger,
		LookupTimeout: d.Cfg.IdentityLookupTimeout,
	})

	stepupProvider, err := stepUpProvider(d.Cfg)
	if err != nil {
		return nil, err
	}
	signer, err := stepup.NewStateSigner(d.Cfg.StepUp.StateSecret, 0)
	if err != nil {
		return nil, err
	}

	proofProvider, err := idProofProvider(d.Cfg)
	if err != nil {
		return nil, err
	}

	return &components{
		identity:     identitySvc,
		approvals:    approvalSvc,
		orchestrator: orchestrator,
		stepup:       stepup.NewService(identitySvc, stepupProvider, signer, d.Logger),
		idproof:      idproof.NewService(proofProvider, identitySvc, fingerprints, d.Logger),
	}, nil
}

func approvalStore(d Deps) (approval.Store, error) {
	switch d.Cfg.ApprovalBackend {
	case config.BackendRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("approval backend redis requires REDIS_URL")
		}
		return approval.NewRedisStore(d.Cache, d.Cfg.ApprovalRetention), nil
	case config.BackendPostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("approval backend postgres requires DATABASE_URL")
		}
		return approval.NewPostgresStore(d.DB), nil
	default:
		return approval.NewMemoryStore(), nil
	}
}

func stepUpProvider(cfg config.Config) (stepup.Provider, error) {
	if cfg.StepUp.Provider != "oauth" {
		return stepup.StaticProvider{}, nil
	}
	return stepup.NewOAuthProvider(stepup.OAuthConfig{
		AuthURL:      cfg.StepUp.AuthURL,
		TokenURL:     cfg.StepUp.TokenURL,
		ProfileURL:   cfg.StepUp.ProfileURL,
		ClientID:     cfg.StepUp.ClientID,
		ClientSecret: cfg.StepUp.ClientSecret,
		RedirectURL:  cfg.StepUp.RedirectURL,
		Scopes:       cfg.StepUp.Scopes,
	})
}

func idProofProvider(cfg config.Config) (idproof.Provider, error) {
	if cfg.IDProof.Provider != "plaid" {
		return idproof.StaticProvider{}, nil
	}
	return idproof.NewPlaidClient(idproof.PlaidConfig{
		BaseURL:  cfg.IDProof.PlaidBaseURL,
		ClientID: cfg.IDProof.PlaidClientID,
		Secret:   cfg.IDProof.PlaidSecret,
	})
}
