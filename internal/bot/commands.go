package bot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"carma/internal/export"
	"carma/internal/models"
	"carma/internal/qr"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdBookings = "bookings"
	cmdBooking  = "booking"
	cmdConfirm  = "confirm"
	cmdExport   = "export"

	// listLimit caps /bookings output; the export has everything.
	listLimit = 10

	helpText = `Fleet desk commands:
/bookings [account] - latest bookings, optionally for one account
/booking <id> - booking details and its pickup QR code
/confirm <id> - hand over the car for a booking
/export - bookings workbook (xlsx)

Send a photo of a customer's pickup QR code to confirm the pickup.`
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 {
		b.countCommand("scan")
		b.handleScan(ctx, msg)
		return
	}

	if !msg.IsCommand() {
		b.sendMessage(msg.Chat.ID, helpText)
		return
	}

	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	b.countCommand(command)

	switch command {
	case cmdStart, cmdHelp:
		b.sendMessage(msg.Chat.ID, helpText)
	case cmdBookings:
		b.handleBookings(ctx, msg.Chat.ID, args)
	case cmdBooking:
		b.handleBooking(ctx, msg.Chat.ID, args)
	case cmdConfirm:
		b.handleConfirm(ctx, msg.Chat.ID, args, "command")
	case cmdExport:
		b.handleExport(ctx, msg.Chat.ID)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleBookings(ctx context.Context, chatID int64, account string) {
	bookings, err := b.bookingService.ListBookings(ctx, account)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("List bookings failed")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if len(bookings) == 0 {
		b.sendMessage(chatID, "No bookings yet.")
		return
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Bookings (%d total)\n", len(bookings))
	for i, booking := range bookings {
		if i == listLimit {
			fmt.Fprintf(&sb, "\n…and %d more, use /export for the full list.", len(bookings)-listLimit)
			break
		}
		fmt.Fprintf(&sb, "\n%s %s · %s · %s → %s",
			statusIcon(booking.Status), booking.ID, booking.CarName, booking.PickupDate, booking.ReturnDate)
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleBooking(ctx context.Context, chatID int64, id string) {
	if id == "" {
		b.sendMessage(chatID, "Usage: /booking <id>")
		return
	}

	booking, err := b.bookingService.GetBooking(ctx, id)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	b.sendMessage(chatID, formatBooking(booking))

	png, err := qr.PickupPNG(b.publicURL, booking.ID, qr.DefaultSize)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("booking_id", booking.ID).Msg("Render pickup QR failed")
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: booking.ID + ".png", Bytes: png})
	photo.Caption = "Pickup code for " + booking.ID
	b.send(photo)
}

func (b *Bot) handleConfirm(ctx context.Context, chatID int64, id, method string) {
	if id == "" {
		b.sendMessage(chatID, "Usage: /confirm <id>")
		return
	}

	booking, err := b.bookingService.ConfirmRental(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("booking_id", id).Msg("Pickup not confirmed")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	b.countPickup(method)
	zerolog.Ctx(ctx).Info().Str("booking_id", booking.ID).Str("method", method).Msg("Pickup confirmed")
	b.sendMessage(chatID, fmt.Sprintf("✅ Rental confirmed: %s\n%s, return by %s.",
		booking.ID, booking.CarName, booking.ReturnDate))
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	bookings, err := b.bookingService.ListBookings(ctx, "")
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	generatedAt := b.now()
	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings, generatedAt); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Build bookings workbook failed")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: export.Filename(generatedAt), Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("%d bookings", len(bookings))
	b.send(doc)
}

func formatBooking(booking *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Booking %s\n", statusIcon(booking.Status), booking.ID)
	fmt.Fprintf(&sb, "Car: %s\n", booking.CarName)
	fmt.Fprintf(&sb, "Dates: %s → %s\n", booking.PickupDate, booking.ReturnDate)
	fmt.Fprintf(&sb, "Location: %s\n", booking.Location)
	fmt.Fprintf(&sb, "Total: $%.2f\n", booking.TotalPrice)
	fmt.Fprintf(&sb, "Status: %s", booking.Status)
	if booking.RentedAt != nil {
		fmt.Fprintf(&sb, " (%s)", booking.RentedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if booking.Account != "" {
		fmt.Fprintf(&sb, "\nAccount: %s", booking.Account)
	}
	return sb.String()
}

func statusIcon(status string) string {
	switch status {
	case models.StatusRented:
		return "🚗"
	case models.StatusConfirmed:
		return "🟢"
	default:
		return "⚪"
	}
}
