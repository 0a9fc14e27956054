// Package wallet relays wallet capability calls to the browser. A flow
// goroutine parks a request here and blocks; the browser lists pending
// requests for its account and answers them over HTTP.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"carma/internal/models"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
)

var (
	ErrRejected        = errors.New("wallet rejected the request")
	ErrRequestNotFound = errors.New("wallet request not found")
	ErrInvalidResponse = errors.New("invalid wallet response")
	ErrAccountMismatch = errors.New("request belongs to another account")
	ErrNoAccount       = errors.New("account is required")
)

const (
	KindPresentation = "presentation"
	KindTransaction  = "transaction"
)

// Request is what the browser sees for a pending wallet call.
type Request struct {
	ID          string                       `json:"id"`
	Kind        string                       `json:"kind"`
	Account     string                       `json:"account"`
	Challenge   string                       `json:"challenge,omitempty"`
	Statements  []models.CredentialStatement `json:"statements,omitempty"`
	Transaction *models.TransactionRequest   `json:"transaction,omitempty"`
	CreatedAt   time.Time                    `json:"createdAt"`
}

type outcome struct {
	value any
	err   error
}

type pending struct {
	req  Request
	done chan outcome
}

// Relay implements domain.Wallet over pending requests.
type Relay struct {
	mu      sync.Mutex
	pending map[string]*pending
	logger  zerolog.Logger
}

func NewRelay(logger *zerolog.Logger) *Relay {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "wallet_relay").Logger()
	}
	return &Relay{pending: make(map[string]*pending), logger: l}
}

func (r *Relay) RequestVerifiablePresentation(
	ctx context.Context,
	account, challenge string,
	statements []models.CredentialStatement,
) (*models.VerifiablePresentation, error) {
	v, err := r.await(ctx, Request{
		Kind:       KindPresentation,
		Account:    account,
		Challenge:  challenge,
		Statements: statements,
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.VerifiablePresentation), nil
}

func (r *Relay) SignAndSendTransaction(ctx context.Context, tx models.TransactionRequest) (string, error) {
	v, err := r.await(ctx, Request{
		Kind:        KindTransaction,
		Account:     tx.Account,
		Transaction: &tx,
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Relay) await(ctx context.Context, req Request) (any, error) {
	if req.Account == "" {
		return nil, ErrNoAccount
	}
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now()

	p := &pending{req: req, done: make(chan outcome, 1)}
	r.mu.Lock()
	r.pending[req.ID] = p
	r.mu.Unlock()

	r.logger.Debug().Str("request_id", req.ID).Str("kind", req.Kind).Str("account", req.Account).Msg("wallet request parked")

	select {
	case out := <-p.done:
		return out.value, out.err
	case <-ctx.Done():
		r.remove(req.ID)
		return nil, ctx.Err()
	}
}

// Pending lists open requests for account, oldest first.
func (r *Relay) Pending(account string) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Request, 0)
	for _, p := range r.pending {
		if p.req.Account == account {
			out = append(out, p.req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Resolve answers a pending request. result is the JSON-decoded wallet
// answer: a presentation object, or a transaction hash (a string or an
// object with a txHash field).
func (r *Relay) Resolve(id, account string, result any) error {
	var value any
	p, err := r.take(id, account, func(req Request) error {
		v, err := decodeResult(req.Kind, result)
		value = v
		return err
	})
	if err != nil {
		return err
	}
	p.done <- outcome{value: value}
	r.logger.Info().Str("request_id", id).Str("kind", p.req.Kind).Msg("wallet request resolved")
	return nil
}

// Reject fails a pending request with ErrRejected.
func (r *Relay) Reject(id, account, reason string) error {
	p, err := r.take(id, account, nil)
	if err != nil {
		return err
	}
	err = ErrRejected
	if reason != "" {
		err = fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	p.done <- outcome{err: err}
	r.logger.Info().Str("request_id", id).Str("reason", reason).Msg("wallet request rejected")
	return nil
}

func (r *Relay) take(id, account string, check func(Request) error) (*pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if account != "" && p.req.Account != account {
		return nil, ErrAccountMismatch
	}
	if check != nil {
		if err := check(p.req); err != nil {
			return nil, err
		}
	}
	delete(r.pending, id)
	return p, nil
}

func (r *Relay) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func decodeResult(kind string, result any) (any, error) {
	switch kind {
	case KindPresentation:
		var vp models.VerifiablePresentation
		if err := decodeJSONShape(result, &vp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return &vp, nil
	case KindTransaction:
		if hash, ok := result.(string); ok && hash != "" {
			return hash, nil
		}
		var wrapped struct {
			TxHash string `json:"txHash"`
		}
		if err := decodeJSONShape(result, &wrapped); err != nil || wrapped.TxHash == "" {
			return nil, fmt.Errorf("%w: transaction hash missing", ErrInvalidResponse)
		}
		return wrapped.TxHash, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidResponse, kind)
	}
}

func decodeJSONShape(input, out any) error {
	if input == nil {
		return errors.New("empty result")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
