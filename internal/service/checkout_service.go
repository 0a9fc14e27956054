package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"carma/internal/domain"
	"carma/internal/events"
	"carma/internal/identity"
	"carma/internal/metrics"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

const (
	// DefaultLocation is used when a checkout names no pickup location.
	DefaultLocation = "Downtown Center"

	localIDLength   = 4
	localIDAttempts = 10

	msgPaymentFailed   = "payment was not completed, please check wallet and try again"
	msgNotFinalized    = "transaction was not finalized, please check wallet and try again"
	msgBookingFailed   = "booking could not be saved, please contact support"
	msgCodeUnavailable = "booking code unavailable, please contact support"
)

var (
	ErrInvalidDates = errors.New("return date must be after pickup date")
	ErrNoBookingID  = errors.New("could not allocate a booking id")
)

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CheckoutOptions carries the policy switches of the checkout flow.
type CheckoutOptions struct {
	RequireVerified bool
	AllowLocalIDs   bool
}

// CheckoutService runs the paid booking flow: pay and verify on chain, wait
// for finality, read the pickup code and store the booking.
type CheckoutService struct {
	runner   *sessionRunner
	catalog  domain.CarCatalog
	bookings domain.BookingRecorder
	repo     domain.BookingRepository
	invoker  domain.ContractInvoker
	poller   domain.FinalityWaiter
	verifier domain.AccountVerifier
	eventBus domain.EventPublisher
	opts     CheckoutOptions
	logger   zerolog.Logger
	now      func() time.Time
	randID   func() (string, error)
}

func NewCheckoutService(
	catalog domain.CarCatalog,
	bookings domain.BookingRecorder,
	repo domain.BookingRepository,
	invoker domain.ContractInvoker,
	poller domain.FinalityWaiter,
	verifier domain.AccountVerifier,
	store domain.SessionStore,
	eventBus domain.EventPublisher,
	ttl time.Duration,
	opts CheckoutOptions,
	logger *zerolog.Logger,
) *CheckoutService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "checkout").Logger()
	}
	return &CheckoutService{
		runner:   newSessionRunner(store, ttl, l),
		catalog:  catalog,
		bookings: bookings,
		repo:     repo,
		invoker:  invoker,
		poller:   poller,
		verifier: verifier,
		eventBus: eventBus,
		opts:     opts,
		logger:   l,
		now:      time.Now,
		randID:   LocalBookingID,
	}
}

// Quote returns the number of rental days and the total price. Partial days
// count as whole days.
func Quote(car *models.Car, pickup, ret time.Time) (int, float64, error) {
	diff := ret.Sub(pickup)
	if diff <= 0 {
		return 0, 0, ErrInvalidDates
	}
	days := int(math.Ceil(diff.Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days, float64(days) * car.PricePerDay, nil
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// LocalBookingID returns "BK" followed by four random base-36 characters.
func LocalBookingID() (string, error) {
	var sb strings.Builder
	sb.WriteString(models.BookingIDPrefix)
	for i := 0; i < localIDLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return sb.String(), nil
}

// ChainBookingID formats a contract pickup code as a booking id.
func ChainBookingID(code uint32) string {
	return fmt.Sprintf("%s0%d", models.BookingIDPrefix, code)
}

type checkoutPlan struct {
	req   domain.CheckoutRequest
	car   models.Car
	price float64
}

// Start validates the request and opens a checkout session. The payment
// itself happens in the background once the wallet answers.
func (s *CheckoutService) Start(ctx context.Context, req domain.CheckoutRequest) (*models.FlowSession, error) {
	req.Account = strings.TrimSpace(req.Account)
	if req.Account == "" {
		return nil, identity.ErrNoWallet
	}

	car, err := s.catalog.GetCar(req.CarID)
	if err != nil {
		return nil, err
	}

	pickup, err := ParseDate(req.PickupDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	ret, err := ParseDate(req.ReturnDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	_, price, err := Quote(car, pickup, ret)
	if err != nil {
		return nil, err
	}

	if s.opts.RequireVerified {
		if s.verifier == nil {
			return nil, ErrNotVerified
		}
		ok, err := s.verifier.IsVerified(ctx, req.Account)
		if err != nil {
			return nil, fmt.Errorf("check verification: %w", err)
		}
		if !ok {
			return nil, ErrNotVerified
		}
	}

	if strings.TrimSpace(req.Location) == "" {
		req.Location = DefaultLocation
	}

	plan := checkoutPlan{req: req, car: *car, price: price}
	return s.runner.start(ctx, models.SessionCheckout, req.Account, models.StepAwaitingWallet, func(ctx context.Context, id string) {
		s.run(ctx, id, plan)
	})
}

func (s *CheckoutService) run(ctx context.Context, id string, plan checkoutPlan) {
	account := plan.req.Account

	txHash, err := s.invoker.VerifyAddress(ctx, account, plan.price)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("session_id", id).Msg("verify_address failed")
		s.failed(id, account, "", msgPaymentFailed)
		return
	}

	s.runner.update(id, func(fs *models.FlowSession) {
		fs.TxHash = txHash
		fs.Step = models.StepFinalizing
	})

	finalized, err := s.poller.WaitForFinalization(ctx, txHash)
	if err != nil && ctx.Err() != nil {
		return
	}
	if !finalized {
		s.failed(id, account, txHash, msgNotFinalized)
		return
	}

	// Paid and final: from here on the booking is written even if the user
	// walks away or a cancel raced the poll.
	s.runner.pin(id)
	ctx = context.WithoutCancel(ctx)
	s.runner.update(id, func(fs *models.FlowSession) {
		fs.Step = models.StepRetrievingCode
	})

	booking, err := s.createBooking(ctx, id, plan, txHash)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Str("tx_hash", txHash).Msg("booking not stored after payment")
		msg := msgBookingFailed
		if errors.Is(err, ErrNoBookingID) {
			msg = msgCodeUnavailable
		}
		s.failed(id, account, txHash, msg)
		return
	}

	s.runner.update(id, func(fs *models.FlowSession) {
		fs.Status = models.SessionCompleted
		fs.Step = models.StepDone
		fs.BookingID = booking.ID
	})
	metrics.IncCheckout("success")
}

func (s *CheckoutService) createBooking(ctx context.Context, id string, plan checkoutPlan, txHash string) (*models.Booking, error) {
	bookingID, source, err := s.allocateID(ctx, plan.req.Account)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:         bookingID,
		CarID:      plan.car.ID,
		CarName:    plan.car.Name,
		CarImage:   plan.car.Image,
		PickupDate: plan.req.PickupDate,
		ReturnDate: plan.req.ReturnDate,
		Location:   plan.req.Location,
		TotalPrice: plan.price,
		Status:     models.StatusConfirmed,
		Account:    plan.req.Account,
		TxHash:     txHash,
		CodeSource: source,
	}

	err = s.bookings.RecordBooking(ctx, booking)
	if errors.Is(err, domain.ErrDuplicateBooking) && source == models.CodeSourceChain && s.opts.AllowLocalIDs {
		s.logger.Warn().Str("session_id", id).Str("booking_id", bookingID).Msg("contract code already used, falling back to local id")
		if booking.ID, err = s.localID(ctx); err != nil {
			return nil, err
		}
		booking.CodeSource = models.CodeSourceLocal
		err = s.bookings.RecordBooking(ctx, booking)
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// allocateID prefers the contract's pickup code and falls back to a random
// local id when allowed.
func (s *CheckoutService) allocateID(ctx context.Context, account string) (string, string, error) {
	code, err := s.invoker.GetCode(ctx, account)
	if err == nil {
		return ChainBookingID(code), models.CodeSourceChain, nil
	}

	s.logger.Warn().Err(err).Str("account", account).Msg("contract returned no code")
	if !s.opts.AllowLocalIDs {
		return "", "", fmt.Errorf("%w: %v", ErrNoBookingID, err)
	}
	id, err := s.localID(ctx)
	if err != nil {
		return "", "", err
	}
	return id, models.CodeSourceLocal, nil
}

func (s *CheckoutService) localID(ctx context.Context) (string, error) {
	for i := 0; i < localIDAttempts; i++ {
		id, err := s.randID()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoBookingID, err)
		}
		exists, err := s.repo.BookingExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrNoBookingID
}

func (s *CheckoutService) failed(id, account, txHash, msg string) {
	if !s.runner.fail(id, msg) {
		return
	}
	metrics.IncCheckout("failed")
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(events.EventCheckoutFailed, events.SessionEventPayload{
		SessionID: id,
		Kind:      models.SessionCheckout,
		Account:   account,
		Status:    models.SessionFailed,
		Error:     msg,
		TxHash:    txHash,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("publish event error")
	}
}

func (s *CheckoutService) Status(ctx context.Context, id string) (*models.FlowSession, error) {
	return s.runner.status(ctx, id)
}

// Cancel abandons a checkout that has not finalized yet. The wallet request
// or the finality wait is released immediately.
func (s *CheckoutService) Cancel(ctx context.Context, id string) (*models.FlowSession, error) {
	return s.runner.cancel(ctx, id)
}

func (s *CheckoutService) Close() {
	s.runner.close()
}
