package domain

import (
	"context"
	"time"

	"carma/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingRepository is the capability set the booking flows need from storage.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByAccount(ctx context.Context, account string) ([]*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	BookingExists(ctx context.Context, id string) (bool, error)
	// MarkRented moves a confirmed booking to rented. It returns
	// ErrInvalidTransition if the booking is already rented.
	MarkRented(ctx context.Context, id string, at time.Time) (*models.Booking, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, session *models.FlowSession, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*models.FlowSession, error)
	MarkVerified(ctx context.Context, account string, ttl time.Duration) error
	IsVerified(ctx context.Context, account string) (bool, error)
}

// Wallet is the browser wallet as seen from the server.
type Wallet interface {
	RequestVerifiablePresentation(ctx context.Context, account, challenge string, statements []models.CredentialStatement) (*models.VerifiablePresentation, error)
	SignAndSendTransaction(ctx context.Context, req models.TransactionRequest) (string, error)
}

// ChainClient is the read side of a chain node.
type ChainClient interface {
	GetBlockItemStatus(ctx context.Context, txHash string) (*models.BlockItemStatus, error)
	InvokeContract(ctx context.Context, req models.InvokeContractRequest) (*models.InvokeContractResult, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService is the Bot API surface the desk bot runs on.
type TelegramService interface {
	TelegramSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string, at time.Time) error
}

// AccountVerifier answers whether an account has passed identity verification.
type AccountVerifier interface {
	IsVerified(ctx context.Context, account string) (bool, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, account string) ([]*models.Booking, error)
	ConfirmRental(ctx context.Context, id string) (*models.Booking, error)
}

// BookingRecorder stores bookings produced by a completed payment.
type BookingRecorder interface {
	RecordBooking(ctx context.Context, booking *models.Booking) error
}

type VerificationService interface {
	Start(ctx context.Context, account string) (*models.FlowSession, error)
	Status(ctx context.Context, id string) (*models.FlowSession, error)
	Cancel(ctx context.Context, id string) (*models.FlowSession, error)
	Statement() models.CredentialStatement
}

type CheckoutRequest struct {
	Account    string `json:"account"`
	CarID      string `json:"carId"`
	PickupDate string `json:"pickupDate"`
	ReturnDate string `json:"returnDate"`
	Location   string `json:"location"`
}

type CheckoutService interface {
	Start(ctx context.Context, req CheckoutRequest) (*models.FlowSession, error)
	Status(ctx context.Context, id string) (*models.FlowSession, error)
	Cancel(ctx context.Context, id string) (*models.FlowSession, error)
}

type CarCatalog interface {
	ListCars() []models.Car
	GetCar(id string) (*models.Car, error)
}

// ContractInvoker is the write and read side of the rental contract.
type ContractInvoker interface {
	VerifyAddress(ctx context.Context, account string, price float64) (string, error)
	GetCode(ctx context.Context, account string) (uint32, error)
}

type FinalityWaiter interface {
	WaitForFinalization(ctx context.Context, txHash string) (bool, error)
}
