package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"carma/internal/domain"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionStore uses primary until it errors, then serves from
// fallback and retries primary once a minute.
type FailoverSessionStore struct {
	primary   domain.SessionStore
	fallback  domain.SessionStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSessionStore(primary, fallback domain.SessionStore, logger *zerolog.Logger) *FailoverSessionStore {
	return &FailoverSessionStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSessionStore) record(err error) bool {
	if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		if r.isDown.Swap(false) && r.logger != nil {
			r.logger.Info().Msg("Primary session store recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) && r.logger != nil {
		r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
	return false
}

func (r *FailoverSessionStore) SaveSession(ctx context.Context, session *models.FlowSession, ttl time.Duration) error {
	if r.usePrimary() && r.record(r.primary.SaveSession(ctx, session, ttl)) {
		return nil
	}
	return r.fallback.SaveSession(ctx, session, ttl)
}

func (r *FailoverSessionStore) GetSession(ctx context.Context, id string) (*models.FlowSession, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, id)
		if r.record(err) {
			if err == nil {
				return session, nil
			}
			// Sessions written during an outage live only in fallback.
			return r.fallback.GetSession(ctx, id)
		}
	}
	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverSessionStore) MarkVerified(ctx context.Context, account string, ttl time.Duration) error {
	if r.usePrimary() && r.record(r.primary.MarkVerified(ctx, account, ttl)) {
		return nil
	}
	return r.fallback.MarkVerified(ctx, account, ttl)
}

func (r *FailoverSessionStore) IsVerified(ctx context.Context, account string) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.IsVerified(ctx, account)
		if r.record(err) {
			if ok {
				return true, nil
			}
			return r.fallback.IsVerified(ctx, account)
		}
	}
	return r.fallback.IsVerified(ctx, account)
}
