package chain

import (
	"context"
	"time"

	"carma/internal/domain"
	"carma/internal/metrics"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

// Poller waits for a transaction to reach finality.
type Poller struct {
	client   domain.ChainClient
	interval time.Duration
	attempts int
	logger   zerolog.Logger
}

func NewPoller(client domain.ChainClient, interval time.Duration, attempts int, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = models.DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = models.DefaultPollAttempts
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "poller").Logger()
	}
	return &Poller{client: client, interval: interval, attempts: attempts, logger: l}
}

// WaitForFinalization polls the status of txHash at a fixed interval. It
// returns true on the first finalized status and false once the attempt
// budget is spent. A failed status query counts as an attempt. If ctx ends
// first the context error is returned.
func (p *Poller) WaitForFinalization(ctx context.Context, txHash string) (bool, error) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		status, err := p.client.GetBlockItemStatus(ctx, txHash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			metrics.IncPoll("error")
			p.logger.Warn().Err(err).Str("tx_hash", txHash).Int("attempt", attempt).Msg("status query failed")
		case status.Status == models.TxStatusFinalized:
			metrics.IncPoll(status.Status)
			p.logger.Info().Str("tx_hash", txHash).Int("attempt", attempt).Msg("transaction finalized")
			return true, nil
		case status.Status == models.TxStatusCommitted:
			metrics.IncPoll(status.Status)
			p.logger.Info().Str("tx_hash", txHash).Int("attempt", attempt).Msg("transaction committed")
		default:
			metrics.IncPoll("pending")
		}

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	p.logger.Warn().Str("tx_hash", txHash).Int("attempts", p.attempts).Msg("transaction not finalized in time")
	return false, nil
}
