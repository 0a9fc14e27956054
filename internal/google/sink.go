package google

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carma/internal/domain"
	"carma/internal/events"
	"carma/internal/models"
)

// SheetsSink keeps the booking sheet in step with booking events.
type SheetsSink struct {
	writer domain.SheetsWriter
}

func NewSheetsSink(writer domain.SheetsWriter) *SheetsSink {
	return &SheetsSink{writer: writer}
}

func (s *SheetsSink) Name() string { return "sheets" }

func (s *SheetsSink) Accepts(eventType string) bool {
	return eventType == events.EventBookingCreated || eventType == events.EventBookingRented
}

func (s *SheetsSink) Deliver(ctx context.Context, event *events.Event) error {
	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode booking payload: %w", err)
	}

	switch event.Type {
	case events.EventBookingCreated:
		return s.writer.AppendBooking(ctx, &models.Booking{
			ID:         p.BookingID,
			CarID:      p.CarID,
			CarName:    p.CarName,
			PickupDate: p.PickupDate,
			ReturnDate: p.ReturnDate,
			Location:   p.Location,
			TotalPrice: p.TotalPrice,
			Status:     p.Status,
			Account:    p.Account,
			TxHash:     p.TxHash,
			CodeSource: p.CodeSource,
			CreatedAt:  p.CreatedAt,
			RentedAt:   p.RentedAt,
		})
	case events.EventBookingRented:
		var at time.Time
		if p.RentedAt != nil {
			at = *p.RentedAt
		}
		return s.writer.UpdateBookingStatus(ctx, p.BookingID, p.Status, at)
	}
	return nil
}
