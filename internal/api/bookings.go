package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carma/internal/export"
	"carma/internal/models"
	"carma/internal/qr"

	"github.com/gorilla/mux"
)

const (
	maxScanBytes     = 10 << 20
	maxQRSize        = 1024
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	msgRentalConfirm = "Rental confirmed successfully"
	msgNoBookingID   = "Booking ID is required"
)

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.URL.Query().Get("account"))
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), account)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var booking models.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid booking data"})
		return
	}

	if err := s.svc.Bookings.CreateBooking(r.Context(), &booking); err != nil {
		code := httpStatus(err)
		msg := err.Error()
		if code == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("booking_id", booking.ID).Msg("create booking failed")
			msg = msgInternal
		}
		writeJSON(w, code, map[string]any{"success": false, "error": msg})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": booking.ID})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.svc.Bookings.GetBooking(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	size := qr.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxQRSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("size must be between 1 and %d", maxQRSize))
			return
		}
		size = n
	}

	png, err := qr.PickupPNG(s.publicURL, id, size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// handleRentalStatus answers whether a scanned booking is ready for pickup.
func (s *HTTPServer) handleRentalStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("bookingId"))
	if id == "" {
		writeError(w, http.StatusBadRequest, msgNoBookingID)
		return
	}

	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{
		"bookingId": booking.ID,
		"status":    booking.Status,
		"carName":   booking.CarName,
	}
	if booking.RentedAt != nil {
		resp["rentedAt"] = booking.RentedAt.UTC().Format(time.RFC3339)
		resp["message"] = "Rental already confirmed"
	} else {
		resp["message"] = "Use POST request to confirm rental"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleConfirmRental(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookingID string `json:"bookingId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.BookingID = strings.TrimSpace(body.BookingID)
	if body.BookingID == "" {
		writeError(w, http.StatusBadRequest, msgNoBookingID)
		return
	}
	s.confirm(w, r, body.BookingID)
}

// handleScanRental confirms the booking encoded in an uploaded QR image. The
// image is either the raw request body or the "image" field of a multipart
// form.
func (s *HTTPServer) handleScanRental(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBytes)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image field is required")
			return
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			writeError(w, http.StatusBadRequest, "could not read image")
			return
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			writeError(w, http.StatusBadRequest, "could not read image")
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}

	id, err := qr.ScanBookingID(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("qr scan failed")
		writeError(w, http.StatusBadRequest, "could not read a booking QR code")
		return
	}
	s.confirm(w, r, id)
}

func (s *HTTPServer) confirm(w http.ResponseWriter, r *http.Request, id string) {
	booking, err := s.svc.Bookings.ConfirmRental(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	confirmedAt := s.now().UTC()
	if booking.RentedAt != nil {
		confirmedAt = booking.RentedAt.UTC()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"bookingId":   booking.ID,
		"confirmedAt": confirmedAt.Format(time.RFC3339),
		"message":     msgRentalConfirm,
	})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), "")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	now := s.now()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(now)))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteBookings(w, bookings, now); err != nil {
		s.log.Error().Err(err).Msg("write bookings export")
	}
}

// handleSaveExport writes the workbook into the configured exports directory.
func (s *HTTPServer) handleSaveExport(w http.ResponseWriter, r *http.Request) {
	if s.exportDir == "" {
		writeError(w, http.StatusServiceUnavailable, "exports directory is not configured")
		return
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), "")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	path, err := export.SaveBookings(s.exportDir, bookings, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log.Info().Str("path", path).Int("bookings", len(bookings)).Msg("bookings export saved")
	writeJSON(w, http.StatusCreated, map[string]any{"path": path, "bookings": len(bookings)})
}
