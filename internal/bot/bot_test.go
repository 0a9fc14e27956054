package bot

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"carma/internal/config"
	"carma/internal/domain"
	"carma/internal/models"
	"carma/internal/qr"
	"carma/internal/repository"
	"carma/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	managerID  = int64(42)
	strangerID = int64(7)
	publicURL  = "http://rent.test"
)

type mockTelegramService struct {
	domain.TelegramService
	mu           sync.Mutex
	updatesChan  chan tgbotapi.Update
	sentMessages []tgbotapi.Chattable
	fileURL      string
	stopped      bool
}

func (m *mockTelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, c)
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "test_bot"}
}

func (m *mockTelegramService) GetFileDirectURL(fileID string) (string, error) {
	return m.fileURL + "/" + fileID, nil
}

func (m *mockTelegramService) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockTelegramService) sent() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), m.sentMessages...)
}

func (m *mockTelegramService) lastText(t *testing.T) string {
	t.Helper()
	sent := m.sent()
	require.NotEmpty(t, sent)
	msg, ok := sent[len(sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok, "last sent item is %T", sent[len(sent)-1])
	return msg.Text
}

type panickingBookings struct {
	domain.BookingService
}

func (panickingBookings) ListBookings(context.Context, string) ([]*models.Booking, error) {
	panic("boom")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newTestBot(t *testing.T) (*Bot, *mockTelegramService, *repository.MemoryBookingRepository) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	repo := repository.NewMemoryBookingRepository()
	bookings := service.NewBookingService(repo, nil, nil, false, &logger)
	tg := &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 1)}

	b := NewBot(tg, bookings, config.TelegramConfig{ManagerIDs: []int64{managerID}}, publicURL,
		NewMetrics(prometheus.NewRegistry()), &logger)
	b.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return b, tg, repo
}

func seed(t *testing.T, repo *repository.MemoryBookingRepository, id string, created time.Time) {
	t.Helper()
	require.NoError(t, repo.CreateBooking(context.Background(), &models.Booking{
		ID:         id,
		CarID:      "1",
		CarName:    "Tesla Model 3",
		PickupDate: "2025-03-10",
		ReturnDate: "2025-03-12",
		Location:   "Downtown Center",
		TotalPrice: 178,
		Status:     models.StatusConfirmed,
		Account:    "acc-1",
		CreatedAt:  created,
	}))
}

func command(from int64, text string) tgbotapi.Update {
	cmd := text
	for i, r := range text {
		if r == ' ' {
			cmd = text[:i]
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestBotStart(t *testing.T) {
	b, tg, _ := newTestBot(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	tg.updatesChan <- command(managerID, "/help")
	require.Eventually(t, func() bool { return len(tg.sent()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, tg.stopped)
}

func TestBot_IgnoresNonManagers(t *testing.T) {
	b, tg, repo := newTestBot(t)
	seed(t, repo, "BK0001", time.Now())

	b.processUpdate(context.Background(), command(strangerID, "/confirm BK0001"))

	assert.Contains(t, tg.lastText(t), "only available to fleet managers")
	booking, err := repo.GetBooking(context.Background(), "BK0001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
}

func TestBot_Help(t *testing.T) {
	b, tg, _ := newTestBot(t)

	b.processUpdate(context.Background(), command(managerID, "/start"))
	assert.Contains(t, tg.lastText(t), "/confirm <id>")

	b.processUpdate(context.Background(), command(managerID, "/nope"))
	assert.Contains(t, tg.lastText(t), "Unknown command")
}

func TestBot_Bookings(t *testing.T) {
	b, tg, repo := newTestBot(t)
	ctx := context.Background()

	b.processUpdate(ctx, command(managerID, "/bookings"))
	assert.Equal(t, "No bookings yet.", tg.lastText(t))

	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		seed(t, repo, models.BookingIDPrefix+string(rune('A'+i)), base.Add(time.Duration(i)*time.Hour))
	}

	b.processUpdate(ctx, command(managerID, "/bookings"))
	text := tg.lastText(t)
	assert.Contains(t, text, "12 total")
	assert.Contains(t, text, "BKL")
	assert.NotContains(t, text, "BKA ")
	assert.Contains(t, text, "and 2 more")

	b.processUpdate(ctx, command(managerID, "/bookings acc-2"))
	assert.Equal(t, "No bookings yet.", tg.lastText(t))
}

func TestBot_BookingDetail(t *testing.T) {
	b, tg, repo := newTestBot(t)
	seed(t, repo, "BK0001", time.Now())

	b.processUpdate(context.Background(), command(managerID, "/booking BK0001"))

	sent := tg.sent()
	require.Len(t, sent, 2)
	details := sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, details.Text, "Tesla Model 3")
	assert.Contains(t, details.Text, "$178.00")

	photo, ok := sent[1].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	file := photo.File.(tgbotapi.FileBytes)
	payload, err := qr.Decode(bytes.NewReader(file.Bytes))
	require.NoError(t, err)
	assert.Equal(t, qr.PickupURL(publicURL, "BK0001"), payload)
}

func TestBot_BookingErrors(t *testing.T) {
	b, tg, _ := newTestBot(t)

	b.processUpdate(context.Background(), command(managerID, "/booking"))
	assert.Equal(t, "Usage: /booking <id>", tg.lastText(t))

	b.processUpdate(context.Background(), command(managerID, "/booking BK404"))
	assert.Contains(t, tg.lastText(t), "No booking with that id")
}

func TestBot_Confirm(t *testing.T) {
	b, tg, repo := newTestBot(t)
	seed(t, repo, "BK0001", time.Now())
	ctx := context.Background()

	b.processUpdate(ctx, command(managerID, "/confirm BK0001"))
	assert.Contains(t, tg.lastText(t), "Rental confirmed: BK0001")

	booking, err := repo.GetBooking(ctx, "BK0001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRented, booking.Status)

	b.processUpdate(ctx, command(managerID, "/confirm BK0001"))
	assert.Contains(t, tg.lastText(t), "already been picked up")

	assert.Equal(t, 1.0, counterValue(t, b.metrics.PickupsConfirmed.WithLabelValues("command")))
	assert.Equal(t, 2.0, counterValue(t, b.metrics.CommandsProcessed.WithLabelValues(cmdConfirm)))
}

func TestBot_Export(t *testing.T) {
	b, tg, repo := newTestBot(t)
	seed(t, repo, "BK0001", time.Now())
	seed(t, repo, "BK0002", time.Now())

	b.processUpdate(context.Background(), command(managerID, "/export"))

	sent := tg.sent()
	require.Len(t, sent, 1)
	doc, ok := sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "2 bookings", doc.Caption)

	file := doc.File.(tgbotapi.FileBytes)
	assert.Equal(t, "bookings_20250301_090000.xlsx", file.Name)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestBot_ScanPhoto(t *testing.T) {
	b, tg, repo := newTestBot(t)
	seed(t, repo, "BK0001", time.Now())

	png, err := qr.PickupPNG(publicURL, "BK0001", 256)
	require.NoError(t, err)

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/large":
			_, _ = w.Write(png)
		case "/garbage":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer files.Close()
	tg.fileURL = files.URL

	photo := func(fileID string) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: managerID},
			Chat: &tgbotapi.Chat{ID: managerID},
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: fileID, Width: 800, Height: 800},
			},
		}}
	}

	ctx := context.Background()
	b.processUpdate(ctx, photo("garbage"))
	assert.Contains(t, tg.lastText(t), "No QR code found")

	b.processUpdate(ctx, photo("missing"))
	assert.Contains(t, tg.lastText(t), "Something went wrong")

	b.processUpdate(ctx, photo("large"))
	assert.Contains(t, tg.lastText(t), "Rental confirmed: BK0001")
	assert.Equal(t, 1.0, counterValue(t, b.metrics.PickupsConfirmed.WithLabelValues("scan")))
}

func TestBot_Recovery(t *testing.T) {
	b, tg, _ := newTestBot(t)
	b.bookingService = panickingBookings{}

	assert.NotPanics(t, func() {
		b.processUpdate(context.Background(), command(managerID, "/bookings"))
	})
	assert.Empty(t, tg.sent())
	assert.Equal(t, 1.0, counterValue(t, b.metrics.ErrorsTotal))
}

func TestBot_IgnoresEmptyUpdates(t *testing.T) {
	b, tg, _ := newTestBot(t)
	b.processUpdate(context.Background(), tgbotapi.Update{})
	assert.Empty(t, tg.sent())
}
