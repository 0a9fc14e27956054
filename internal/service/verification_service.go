package service

import (
	"context"
	"strings"
	"time"

	"carma/internal/domain"
	"carma/internal/events"
	"carma/internal/identity"
	"carma/internal/metrics"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

const msgVerificationFailed = "verification failed, please try again"

// VerificationService runs identity verification sessions: it asks the
// wallet for a presentation, extracts the revealed attributes and applies
// the policy. Accounts that pass are remembered for the session TTL.
type VerificationService struct {
	runner    *sessionRunner
	requester *identity.Requester
	store     domain.SessionStore
	eventBus  domain.EventPublisher
	ttl       time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewVerificationService(
	wallet domain.Wallet,
	store domain.SessionStore,
	eventBus domain.EventPublisher,
	ttl time.Duration,
	logger *zerolog.Logger,
) *VerificationService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "verification").Logger()
	}
	runner := newSessionRunner(store, ttl, l)
	return &VerificationService{
		runner:    runner,
		requester: identity.NewRequester(wallet),
		store:     store,
		eventBus:  eventBus,
		ttl:       runner.ttl,
		logger:    l,
		now:       time.Now,
	}
}

// Statement is the credential statement currently requested from wallets.
func (s *VerificationService) Statement() models.CredentialStatement {
	return identity.BuildStatement(s.now())
}

// Start opens a verification session for account and returns it pending.
func (s *VerificationService) Start(ctx context.Context, account string) (*models.FlowSession, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, identity.ErrNoWallet
	}
	return s.runner.start(ctx, models.SessionVerification, account, models.StepAwaitingWallet, func(ctx context.Context, id string) {
		s.run(ctx, id, account)
	})
}

func (s *VerificationService) run(ctx context.Context, id, account string) {
	now := s.now()
	statement := identity.BuildStatement(now)

	vp, err := s.requester.Request(ctx, account, statement)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("session_id", id).Str("account", account).Msg("presentation request failed")
		if s.runner.fail(id, msgVerificationFailed) {
			metrics.IncVerification("error")
			s.publish(id, account, models.SessionFailed, "", msgVerificationFailed)
		}
		return
	}

	extraction := identity.ExtractAttributes(vp, statement)
	if len(extraction.Mismatches) > 0 {
		s.logger.Warn().Strs("mismatches", extraction.Mismatches).Str("session_id", id).Msg("presentation not aligned with statement")
	}
	outcome := identity.Evaluate(extraction.Attributes, now)

	if outcome == models.OutcomeSuccess {
		if err := s.store.MarkVerified(context.WithoutCancel(ctx), account, s.ttl); err != nil {
			s.logger.Error().Err(err).Str("account", account).Msg("mark verified failed")
			if s.runner.fail(id, msgVerificationFailed) {
				metrics.IncVerification("error")
				s.publish(id, account, models.SessionFailed, "", msgVerificationFailed)
			}
			return
		}
	}

	attrs := extraction.Attributes
	done := s.runner.update(id, func(fs *models.FlowSession) {
		fs.Status = models.SessionCompleted
		fs.Step = models.StepDone
		fs.Outcome = outcome
		fs.Attributes = &attrs
		fs.Mismatches = extraction.Mismatches
	})
	if !done {
		return
	}

	metrics.IncVerification(outcome)
	s.logger.Info().Str("session_id", id).Str("account", account).Str("outcome", outcome).Msg("verification completed")
	s.publish(id, account, models.SessionCompleted, outcome, "")
}

func (s *VerificationService) Status(ctx context.Context, id string) (*models.FlowSession, error) {
	return s.runner.status(ctx, id)
}

// Cancel abandons a pending session. Cancelling a finished session returns
// it unchanged.
func (s *VerificationService) Cancel(ctx context.Context, id string) (*models.FlowSession, error) {
	return s.runner.cancel(ctx, id)
}

// IsVerified reports whether account passed verification recently.
func (s *VerificationService) IsVerified(ctx context.Context, account string) (bool, error) {
	return s.store.IsVerified(ctx, account)
}

// Close cancels running sessions and waits for them.
func (s *VerificationService) Close() {
	s.runner.close()
}

func (s *VerificationService) publish(id, account, status, outcome, errMsg string) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(events.EventVerificationCompleted, events.SessionEventPayload{
		SessionID: id,
		Kind:      models.SessionVerification,
		Account:   account,
		Status:    status,
		Outcome:   outcome,
		Error:     errMsg,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("publish event error")
	}
}
