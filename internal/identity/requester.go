package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"carma/internal/domain"
	"carma/internal/models"
)

var (
	ErrNoWallet       = errors.New("connect your wallet first")
	ErrNoPresentation = errors.New("wallet returned no presentation")
	// ErrChallengeMismatch means the presentation was not made for this
	// request: its context is not the challenge that was sent.
	ErrChallengeMismatch = errors.New("presentation does not answer the challenge")
)

// Requester asks a wallet for a verifiable presentation.
type Requester struct {
	wallet domain.Wallet
}

func NewRequester(wallet domain.Wallet) *Requester {
	return &Requester{wallet: wallet}
}

// Request blocks until the wallet answers or ctx is done. There is no
// internal timeout. The presentation must carry the request's challenge as
// its presentationContext.
func (r *Requester) Request(
	ctx context.Context,
	account string,
	statement models.CredentialStatement,
) (*models.VerifiablePresentation, error) {
	if r.wallet == nil || strings.TrimSpace(account) == "" {
		return nil, ErrNoWallet
	}

	challenge, err := NewChallenge()
	if err != nil {
		return nil, err
	}

	vp, err := r.wallet.RequestVerifiablePresentation(ctx, account, challenge, []models.CredentialStatement{statement})
	if err != nil {
		return nil, fmt.Errorf("request presentation: %w", err)
	}
	if vp == nil {
		return nil, ErrNoPresentation
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(vp.PresentationContext)), []byte(challenge)) != 1 {
		return nil, ErrChallengeMismatch
	}
	return vp, nil
}

// NewChallenge returns 32 random bytes, hex encoded.
func NewChallenge() (string, error) {
	buf := make([]byte, models.ChallengeSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
