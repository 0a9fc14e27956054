package bot

import (
	"errors"

	"carma/internal/domain"
	"carma/internal/qr"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, domain.ErrBookingNotFound) {
		return "❌ No booking with that id."
	}

	if errors.Is(err, domain.ErrInvalidTransition) {
		return "⚠️ This car has already been picked up."
	}

	if errors.Is(err, qr.ErrNoBookingID) {
		return "⚠️ The QR code in that photo is not a pickup code."
	}

	if errors.Is(err, errNoQRCode) {
		return "⚠️ No QR code found in that photo. Try again with the code filling the frame."
	}

	return "❌ Something went wrong while handling your request. Please try again later."
}
