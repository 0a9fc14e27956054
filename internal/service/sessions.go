package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"carma/internal/domain"
	"carma/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotCancellable is returned when a session has passed the point where it
// can be abandoned, e.g. a checkout whose payment already finalized.
var ErrNotCancellable = errors.New("session can no longer be cancelled")

const saveTimeout = 5 * time.Second

type flow struct {
	session models.FlowSession
	cancel  context.CancelFunc
	pinned  bool
}

// sessionRunner runs one goroutine per flow session. Live sessions are kept
// in memory and mirrored to the session store on every change; finished
// sessions are served from the store.
type sessionRunner struct {
	store  domain.SessionStore
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu    sync.Mutex
	flows map[string]*flow
}

func newSessionRunner(store domain.SessionStore, ttl time.Duration, logger zerolog.Logger) *sessionRunner {
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL
	}
	base, stop := context.WithCancel(context.Background())
	return &sessionRunner{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		base:   base,
		stop:   stop,
		flows:  make(map[string]*flow),
	}
}

// start persists a pending session and runs fn for it in the background.
// fn's context ends when the session is cancelled or the runner closes.
func (r *sessionRunner) start(ctx context.Context, kind, account, step string, fn func(ctx context.Context, id string)) (*models.FlowSession, error) {
	if r.base.Err() != nil {
		return nil, errors.New("service is shutting down")
	}

	now := r.now().UTC()
	session := models.FlowSession{
		ID:        uuid.NewString(),
		Kind:      kind,
		Account:   account,
		Status:    models.SessionPending,
		Step:      step,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SaveSession(ctx, &session, r.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	flowCtx, cancel := context.WithCancel(r.base)
	r.mu.Lock()
	r.flows[session.ID] = &flow{session: session, cancel: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish(session.ID)
		fn(flowCtx, session.ID)
	}()

	r.logger.Info().Str("session_id", session.ID).Str("kind", kind).Str("account", account).Msg("session started")
	out := session
	return &out, nil
}

// update applies fn to a live session and persists the result. It returns
// false when the session already reached a terminal state.
func (r *sessionRunner) update(id string, fn func(s *models.FlowSession)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flows[id]
	if !ok || f.session.Terminal() {
		return false
	}
	fn(&f.session)
	f.session.UpdatedAt = r.now().UTC()
	r.save(f.session)
	return true
}

// pin marks a session as no longer cancellable. A user cancel that landed
// after the outcome was already decided is reverted so the flow can finish.
func (r *sessionRunner) pin(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	if !ok {
		return
	}
	f.pinned = true
	if f.session.Status == models.SessionCancelled {
		f.session.Status = models.SessionPending
		f.session.Error = ""
		f.session.UpdatedAt = r.now().UTC()
		r.save(f.session)
		r.logger.Warn().Str("session_id", id).Msg("cancel overridden by finalized outcome")
	}
}

func (r *sessionRunner) fail(id, message string) bool {
	return r.update(id, func(s *models.FlowSession) {
		s.Status = models.SessionFailed
		s.Error = message
	})
}

func (r *sessionRunner) get(id string) (models.FlowSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	if !ok {
		return models.FlowSession{}, false
	}
	return f.session, true
}

func (r *sessionRunner) status(ctx context.Context, id string) (*models.FlowSession, error) {
	if s, ok := r.get(id); ok {
		return &s, nil
	}
	return r.store.GetSession(ctx, id)
}

func (r *sessionRunner) cancel(ctx context.Context, id string) (*models.FlowSession, error) {
	r.mu.Lock()
	f, ok := r.flows[id]
	if !ok {
		r.mu.Unlock()
		return r.store.GetSession(ctx, id)
	}
	if f.pinned && !f.session.Terminal() {
		r.mu.Unlock()
		return nil, ErrNotCancellable
	}
	if !f.session.Terminal() {
		f.session.Status = models.SessionCancelled
		f.session.Error = "cancelled by user"
		f.session.UpdatedAt = r.now().UTC()
		r.save(f.session)
		f.cancel()
	}
	out := f.session
	r.mu.Unlock()

	r.logger.Info().Str("session_id", id).Msg("session cancelled")
	return &out, nil
}

func (r *sessionRunner) finish(id string) {
	r.mu.Lock()
	f, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	f.cancel()
	if !f.session.Terminal() {
		// The flow returned without reaching an outcome; the runner is closing.
		f.session.Status = models.SessionCancelled
		f.session.Error = "server shutting down"
		f.session.UpdatedAt = r.now().UTC()
		r.save(f.session)
	}
}

// save must not depend on the flow context, which may already be cancelled.
func (r *sessionRunner) save(s models.FlowSession) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.SaveSession(ctx, &s, r.ttl); err != nil {
		r.logger.Error().Err(err).Str("session_id", s.ID).Msg("save session failed")
	}
}

// close cancels every live session and waits for the goroutines to return.
func (r *sessionRunner) close() {
	r.stop()
	r.wg.Wait()
}
