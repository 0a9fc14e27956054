// Package qr renders pickup QR codes and reads them back from scans.
package qr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"strings"

	"carma/internal/models"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	skip2 "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

var ErrNoBookingID = errors.New("qr payload carries no booking id")

// PickupURL is what the pickup QR encodes: the confirm page for bookingID.
func PickupURL(baseURL, bookingID string) string {
	return strings.TrimRight(baseURL, "/") + "/confirm-rental?bookingId=" + url.QueryEscape(bookingID)
}

// EncodePNG renders content as a QR code PNG.
func EncodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := skip2.Encode(content, skip2.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// PickupPNG renders the pickup QR for a booking.
func PickupPNG(baseURL, bookingID string, size int) ([]byte, error) {
	return EncodePNG(PickupURL(baseURL, bookingID), size)
}

// Decode reads a PNG or JPEG image and returns the QR text it contains.
func Decode(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("creating bitmap: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("no QR code found in image: %w", err)
	}
	return result.GetText(), nil
}

// BookingID pulls the booking id out of a scanned payload. The pickup URL,
// a bare booking id and the JSON ticket {"bookingId":...,"carName":...} are
// accepted.
func BookingID(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", ErrNoBookingID
	}

	if strings.HasPrefix(payload, "{") {
		var ticket struct {
			BookingID string `json:"bookingId"`
		}
		if err := json.Unmarshal([]byte(payload), &ticket); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoBookingID, err)
		}
		id := strings.TrimSpace(ticket.BookingID)
		if id == "" {
			return "", ErrNoBookingID
		}
		return id, nil
	}

	if strings.HasPrefix(payload, models.BookingIDPrefix) && !strings.ContainsAny(payload, "/?=") {
		return payload, nil
	}

	u, err := url.Parse(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoBookingID, err)
	}
	id := strings.TrimSpace(u.Query().Get("bookingId"))
	if id == "" {
		return "", ErrNoBookingID
	}
	return id, nil
}

// ScanBookingID decodes an uploaded image and returns the booking id in it.
func ScanBookingID(data []byte) (string, error) {
	text, err := Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return BookingID(text)
}
