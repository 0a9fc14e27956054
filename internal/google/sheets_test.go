package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carma/internal/events"
	"carma/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, newSheetsService(srv, "bookings_tid", "")
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"BK0123"}, {}, {"BKX7QZ"}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.getCachedRow("BK0123")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow("BKX7QZ")
	assert.Equal(t, 4, row)
}

func TestSheetsService_AppendBooking(t *testing.T) {
	mux, s := setupMockServer(t)
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:M10"},
		})
	})

	booking := &models.Booking{ID: "BK0123", CarName: "Tesla Model 3", Status: models.StatusConfirmed, CreatedAt: time.Now()}
	require.NoError(t, s.AppendBooking(context.Background(), booking))

	row, _ := s.getCachedRow("BK0123")
	assert.Equal(t, 10, row)
	require.Len(t, got.Values, 1)
	assert.Equal(t, "BK0123", got.Values[0][0])
	assert.Len(t, got.Values[0], len(bookingHeaders))
}

func TestSheetsService_UpdateBookingStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("BK0123", 2)

	var statusHit, rentedHit bool
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!H2:H2", func(w http.ResponseWriter, r *http.Request) {
		statusHit = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!M2:M2", func(w http.ResponseWriter, r *http.Request) {
		rentedHit = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	err := s.UpdateBookingStatus(context.Background(), "BK0123", models.StatusRented, time.Now())
	require.NoError(t, err)
	assert.True(t, statusHit)
	assert.True(t, rentedHit)
}

func TestSheetsService_FindBookingRow_NotFound(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	_, err := s.FindBookingRow(context.Background(), "BK9999")
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = s.FindBookingRow(context.Background(), "")
	assert.Error(t, err)
}

func TestSheetsService_ReplaceBookings(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:M:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1:M3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	bookings := []*models.Booking{{ID: "BK01"}, {ID: "BK02"}}
	require.NoError(t, s.ReplaceBookings(context.Background(), bookings))

	row, _ := s.getCachedRow("BK02")
	assert.Equal(t, 3, row)
}

func TestFirstRow(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Bookings!A10:M10", 10, true},
		{"A7", 7, true},
		{"Bookings!A:A", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := firstRow(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"bot@project.iam.gserviceaccount.com"}`), 0o600))

	email, err := ServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "bot@project.iam.gserviceaccount.com", email)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) AppendBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockWriter) UpdateBookingStatus(ctx context.Context, id, status string, at time.Time) error {
	return m.Called(ctx, id, status, at).Error(0)
}

func TestSheetsSink(t *testing.T) {
	writer := new(mockWriter)
	sink := NewSheetsSink(writer)
	rentedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := events.NewJSONEvent(events.EventBookingCreated, events.BookingEventPayload{BookingID: "BK01", Status: models.StatusConfirmed})
	require.NoError(t, err)
	rented, err := events.NewJSONEvent(events.EventBookingRented, events.BookingEventPayload{BookingID: "BK01", Status: models.StatusRented, RentedAt: &rentedAt})
	require.NoError(t, err)

	writer.On("AppendBooking", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool { return b.ID == "BK01" })).Return(nil).Once()
	writer.On("UpdateBookingStatus", mock.Anything, "BK01", models.StatusRented, mock.MatchedBy(rentedAt.Equal)).Return(errors.New("quota")).Once()

	assert.True(t, sink.Accepts(events.EventBookingCreated))
	assert.False(t, sink.Accepts(events.EventCheckoutFailed))
	assert.NoError(t, sink.Deliver(context.Background(), &created))
	assert.EqualError(t, sink.Deliver(context.Background(), &rented), "quota")
	writer.AssertExpectations(t)
}
