// Package notify delivers domain events to fleet managers and downstream
// systems.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"carma/internal/config"
	"carma/internal/domain"
	"carma/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewTelegramBot connects to the Bot API with the configured token.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramSink posts booking activity to manager chats.
type TelegramSink struct {
	bot     domain.TelegramSender
	chatIDs []int64
}

func NewTelegramSink(bot domain.TelegramSender, chatIDs []int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatIDs: chatIDs}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Accepts(eventType string) bool {
	switch eventType {
	case events.EventBookingCreated, events.EventBookingRented, events.EventCheckoutFailed:
		return len(s.chatIDs) > 0
	}
	return false
}

// Deliver sends the event to every chat. Chats that already received the
// message are not retried separately; a failure on any chat fails the
// delivery as a whole.
func (s *TelegramSink) Deliver(_ context.Context, event *events.Event) error {
	text, err := FormatMessage(event)
	if err != nil {
		return err
	}

	var errs []error
	for _, chatID := range s.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := s.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatMessage renders an event as a plain-text chat message.
func FormatMessage(event *events.Event) (string, error) {
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingRented:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode booking payload: %w", err)
		}
		var sb strings.Builder
		if event.Type == events.EventBookingCreated {
			fmt.Fprintf(&sb, "🚗 New booking %s\n", p.BookingID)
		} else {
			fmt.Fprintf(&sb, "🔑 Car picked up: %s\n", p.BookingID)
		}
		fmt.Fprintf(&sb, "Car: %s\n", p.CarName)
		fmt.Fprintf(&sb, "Dates: %s → %s\n", p.PickupDate, p.ReturnDate)
		if p.Location != "" {
			fmt.Fprintf(&sb, "Location: %s\n", p.Location)
		}
		fmt.Fprintf(&sb, "Total: $%.2f\n", p.TotalPrice)
		fmt.Fprintf(&sb, "Account: %s", p.Account)
		if p.CodeSource != "" && p.CodeSource != "chain" {
			fmt.Fprintf(&sb, "\n⚠️ Booking code was generated locally")
		}
		return sb.String(), nil

	case events.EventCheckoutFailed:
		var p events.SessionEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode session payload: %w", err)
		}
		msg := fmt.Sprintf("❌ Checkout failed for %s: %s", p.Account, p.Error)
		if p.TxHash != "" {
			msg += "\nTransaction: " + p.TxHash
		}
		return msg, nil
	}
	return "", fmt.Errorf("unsupported event type %q", event.Type)
}
