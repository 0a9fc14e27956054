package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"carma/internal/config"
	"carma/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	timeLayout = "2006-01-02 15:04:05"

	statusColumn   = "H"
	rentedAtColumn = "M"
)

var bookingHeaders = []interface{}{
	"ID", "Car ID", "Car", "Pickup", "Return", "Location", "Total", "Status",
	"Account", "Code Source", "Tx Hash", "Created At", "Rented At",
}

var ErrRowNotFound = errors.New("booking row not found")

// SheetsService mirrors bookings into a Google spreadsheet, one row per
// booking, keyed by the booking id in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string

	rowCache map[string]int
	cacheMu  sync.RWMutex
}

// NewSheetsService authenticates with a service-account key file.
func NewSheetsService(ctx context.Context, cfg config.GoogleConfig) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, cfg.BookingSpreadSheetID, cfg.BookingsSheetName), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string) *SheetsService {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
	}
}

// ServiceAccountEmail returns the client_email of a key file, which is the
// address the spreadsheet has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func (s *SheetsService) rng(a1 string) string {
	return s.sheetName + "!" + a1
}

// TestConnection reads the header cell.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:M1"), &sheets.ValueRange{
		Values: [][]interface{}{bookingHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache populates the row index cache by reading the id column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if id := cellString(row); id != "" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendBooking adds a row for a new booking.
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpdateBookingStatus rewrites the status cell and the rental timestamp.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID, status string, at time.Time) error {
	row, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	statusRange := s.rng(fmt.Sprintf("%s%d:%s%d", statusColumn, row, statusColumn, row))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	if at.IsZero() {
		return nil
	}
	rentedRange := s.rng(fmt.Sprintf("%s%d:%s%d", rentedAtColumn, row, rentedAtColumn, row))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rentedRange, &sheets.ValueRange{
		Values: [][]interface{}{{at.UTC().Format(timeLayout)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindBookingRow returns the 1-based sheet row holding bookingID.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellString(row) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceBookings rewrites the whole sheet from the store.
func (s *SheetsService) ReplaceBookings(ctx context.Context, bookings []*models.Booking) error {
	values := [][]interface{}{bookingHeaders}
	for _, b := range bookings {
		values = append(values, bookingRowValues(b))
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A:M"), &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to clear sheet: %w", err)
	}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng(fmt.Sprintf("A1:M%d", len(values))), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[string]int, len(bookings))
	for i, b := range bookings {
		s.rowCache[b.ID] = i + 2
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func bookingRowValues(b *models.Booking) []interface{} {
	rentedAt := ""
	if b.RentedAt != nil {
		rentedAt = b.RentedAt.UTC().Format(timeLayout)
	}
	return []interface{}{
		b.ID,
		b.CarID,
		b.CarName,
		b.PickupDate,
		b.ReturnDate,
		b.Location,
		b.TotalPrice,
		b.Status,
		b.Account,
		b.CodeSource,
		b.TxHash,
		b.CreatedAt.UTC().Format(timeLayout),
		rentedAt,
	}
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// firstRow extracts the starting row from an A1 range like "Bookings!A10:M10".
func firstRow(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, false
	}
	return row, true
}
