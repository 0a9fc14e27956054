package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carma/internal/domain"
	"carma/internal/events"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidBooking = errors.New("invalid booking data")
	ErrNotVerified    = errors.New("account has not passed identity verification")
)

type BookingService struct {
	repo            domain.BookingRepository
	verifier        domain.AccountVerifier
	eventBus        domain.EventPublisher
	requireVerified bool
	logger          zerolog.Logger
	now             func() time.Time
}

// NewBookingService wires the booking store. When requireVerified is set,
// bookings are only accepted for accounts the verifier knows.
func NewBookingService(
	repo domain.BookingRepository,
	verifier domain.AccountVerifier,
	eventBus domain.EventPublisher,
	requireVerified bool,
	logger *zerolog.Logger,
) *BookingService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking_service").Logger()
	}
	return &BookingService{
		repo:            repo,
		verifier:        verifier,
		eventBus:        eventBus,
		requireVerified: requireVerified,
		logger:          l,
		now:             time.Now,
	}
}

func (s *BookingService) ValidateBooking(booking *models.Booking) error {
	if booking == nil {
		return ErrInvalidBooking
	}
	booking.ID = strings.TrimSpace(booking.ID)
	booking.Account = strings.TrimSpace(booking.Account)

	switch {
	case booking.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidBooking)
	case strings.TrimSpace(booking.CarID) == "":
		return fmt.Errorf("%w: carId is required", ErrInvalidBooking)
	case booking.TotalPrice < 0:
		return fmt.Errorf("%w: totalPrice must not be negative", ErrInvalidBooking)
	}

	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}
	if booking.Status != models.StatusConfirmed {
		return fmt.Errorf("%w: new bookings start as %s", ErrInvalidBooking, models.StatusConfirmed)
	}
	return nil
}

// CreateBooking validates and stores a new booking. Ids are unique; a second
// booking with the same id fails with ErrDuplicateBooking.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.ValidateBooking(booking); err != nil {
		return err
	}

	if s.requireVerified {
		if err := s.checkVerified(ctx, booking.Account); err != nil {
			return err
		}
	}
	return s.store(ctx, booking)
}

// RecordBooking stores a booking whose account was checked before payment.
// The verification gate is skipped: the marker may have expired while the
// transaction finalized, and the payment is already on chain.
func (s *BookingService) RecordBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.ValidateBooking(booking); err != nil {
		return err
	}
	return s.store(ctx, booking)
}

func (s *BookingService) store(ctx context.Context, booking *models.Booking) error {
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = s.now().UTC()
	}
	if booking.CodeSource == "" {
		booking.CodeSource = models.CodeSourceLocal
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return err
	}

	s.logger.Info().Str("booking_id", booking.ID).Str("account", booking.Account).Str("code_source", booking.CodeSource).Msg("booking created")
	s.publishEvent(events.EventBookingCreated, booking)
	return nil
}

func (s *BookingService) checkVerified(ctx context.Context, account string) error {
	if account == "" || s.verifier == nil {
		return ErrNotVerified
	}
	ok, err := s.verifier.IsVerified(ctx, account)
	if err != nil {
		return fmt.Errorf("check verification: %w", err)
	}
	if !ok {
		return ErrNotVerified
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, strings.TrimSpace(id))
}

// ListBookings returns every booking, or only those of account when set.
func (s *BookingService) ListBookings(ctx context.Context, account string) ([]*models.Booking, error) {
	var (
		bookings []*models.Booking
		err      error
	)
	if account = strings.TrimSpace(account); account != "" {
		bookings, err = s.repo.GetBookingsByAccount(ctx, account)
	} else {
		bookings, err = s.repo.ListBookings(ctx)
	}
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

// ConfirmRental moves a booking from confirmed to rented. It succeeds once;
// a second call returns ErrInvalidTransition and changes nothing.
func (s *BookingService) ConfirmRental(ctx context.Context, id string) (*models.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrInvalidBooking)
	}

	booking, err := s.repo.MarkRented(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", id).Msg("rental confirmed")
	s.publishEvent(events.EventBookingRented, booking)
	return booking, nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		CarID:      booking.CarID,
		CarName:    booking.CarName,
		PickupDate: booking.PickupDate,
		ReturnDate: booking.ReturnDate,
		Location:   booking.Location,
		TotalPrice: booking.TotalPrice,
		Status:     booking.Status,
		Account:    booking.Account,
		CodeSource: booking.CodeSource,
		TxHash:     booking.TxHash,
		CreatedAt:  booking.CreatedAt,
		RentedAt:   booking.RentedAt,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}
