// Package bot runs the fleet desk Telegram bot: managers look up bookings,
// confirm pickups and pull the bookings workbook from a chat.
package bot

import (
	"context"
	"net/http"
	"time"

	"carma/internal/config"
	"carma/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Bot struct {
	tgService      domain.TelegramService
	bookingService domain.BookingService
	managers       map[int64]struct{}
	publicURL      string
	httpClient     *http.Client
	metrics        *Metrics
	logger         *zerolog.Logger
	now            func() time.Time
}

func NewBot(
	tgService domain.TelegramService,
	bookingService domain.BookingService,
	cfg config.TelegramConfig,
	publicURL string,
	metrics *Metrics,
	logger *zerolog.Logger,
) *Bot {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "desk_bot").Logger()
	}

	managers := make(map[int64]struct{}, len(cfg.ManagerIDs))
	for _, id := range cfg.ManagerIDs {
		managers[id] = struct{}{}
	}

	return &Bot{
		tgService:      tgService,
		bookingService: bookingService,
		managers:       managers,
		publicURL:      publicURL,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		metrics:        metrics,
		logger:         &l,
		now:            time.Now,
	}
}

// Start consumes updates until ctx is done or the update channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Int("managers", len(b.managers)).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tgService.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}

		if !b.isManager(msg.From.ID) {
			l.Warn().Int64("user_id", msg.From.ID).Msg("Update from non-manager ignored")
			b.sendMessage(msg.Chat.ID, "⛔ This bot is only available to fleet managers.")
			return
		}

		b.handleMessage(updateCtx, msg)
	})
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tgService.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send message")
	}
}
