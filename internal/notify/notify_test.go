package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"carma/internal/config"
	"carma/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBot struct {
	mock.Mock
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

func bookingEvent(t *testing.T, eventType string) *events.Event {
	t.Helper()
	ev, err := events.NewJSONEvent(eventType, events.BookingEventPayload{
		BookingID:  "BK0123",
		CarName:    "Tesla Model 3",
		PickupDate: "2025-03-01",
		ReturnDate: "2025-03-04",
		Location:   "Airport",
		TotalPrice: 267,
		Account:    "3kBx",
		CodeSource: "local",
	})
	require.NoError(t, err)
	return &ev
}

func TestFormatMessage(t *testing.T) {
	text, err := FormatMessage(bookingEvent(t, events.EventBookingCreated))
	require.NoError(t, err)
	assert.Contains(t, text, "New booking BK0123")
	assert.Contains(t, text, "Tesla Model 3")
	assert.Contains(t, text, "$267.00")
	assert.Contains(t, text, "generated locally")

	text, err = FormatMessage(bookingEvent(t, events.EventBookingRented))
	require.NoError(t, err)
	assert.Contains(t, text, "picked up: BK0123")

	failed, err := events.NewJSONEvent(events.EventCheckoutFailed, events.SessionEventPayload{Account: "3kBx", Error: "transaction not finalized", TxHash: "abc"})
	require.NoError(t, err)
	text, err = FormatMessage(&failed)
	require.NoError(t, err)
	assert.Contains(t, text, "transaction not finalized")
	assert.Contains(t, text, "abc")

	_, err = FormatMessage(&events.Event{Type: "unknown"})
	assert.Error(t, err)
}

func TestTelegramSink_Deliver(t *testing.T) {
	bot := new(mockBot)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 1
	})).Return(tgbotapi.Message{}, nil).Once()
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 2
	})).Return(tgbotapi.Message{}, errors.New("forbidden")).Once()

	sink := NewTelegramSink(bot, []int64{1, 2})
	err := sink.Deliver(context.Background(), bookingEvent(t, events.EventBookingCreated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 2")
	bot.AssertExpectations(t)
}

func TestTelegramSink_Accepts(t *testing.T) {
	sink := NewTelegramSink(new(mockBot), []int64{1})
	assert.True(t, sink.Accepts(events.EventBookingCreated))
	assert.True(t, sink.Accepts(events.EventCheckoutFailed))
	assert.False(t, sink.Accepts(events.EventVerificationCompleted))

	assert.False(t, NewTelegramSink(new(mockBot), nil).Accepts(events.EventBookingCreated))
}

func TestNewTelegramBot_EmptyToken(t *testing.T) {
	_, err := NewTelegramBot(config.TelegramConfig{})
	assert.Error(t, err)
}

func TestAMQPPublisher_Deliver(t *testing.T) {
	ch := new(mockChannel)
	pub := NewAMQPPublisher(ch, "carma", "carma.events")
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	ev := bookingEvent(t, events.EventBookingCreated)
	ch.On("PublishWithContext", mock.Anything, "carma", "carma.events.booking_created", false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			var decoded events.Event
			if err := json.Unmarshal(msg.Body, &decoded); err != nil {
				return false
			}
			return msg.ContentType == "application/json" &&
				msg.DeliveryMode == amqp.Persistent &&
				msg.Timestamp.Equal(fixed) &&
				decoded.Type == events.EventBookingCreated
		})).Return(nil).Once()

	require.NoError(t, pub.Deliver(context.Background(), ev))
	assert.True(t, pub.Accepts(events.EventVerificationCompleted))
	ch.AssertExpectations(t)
}

func TestAMQPPublisher_DeliverError(t *testing.T) {
	ch := new(mockChannel)
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(amqp.ErrClosed)

	pub := NewAMQPPublisher(ch, "carma", "carma.events")
	err := pub.Deliver(context.Background(), bookingEvent(t, events.EventBookingRented))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
