package models

import "time"

type Booking struct {
	ID         string     `json:"id"`
	CarID      string     `json:"carId"`
	CarName    string     `json:"carName"`
	CarImage   string     `json:"carImage"`
	PickupDate string     `json:"pickupDate"`
	ReturnDate string     `json:"returnDate"`
	Location   string     `json:"location"`
	TotalPrice float64    `json:"totalPrice"`
	Status     string     `json:"status"` // confirmed, rented
	Account    string     `json:"account"`
	TxHash     string     `json:"txHash,omitempty"`
	CodeSource string     `json:"codeSource,omitempty"` // chain, local
	CreatedAt  time.Time  `json:"createdAt"`
	RentedAt   *time.Time `json:"rentedAt,omitempty"`
}

// CanTransitionTo reports whether status may move to next. Statuses only move forward.
func (b *Booking) CanTransitionTo(next string) bool {
	return StatusRank(next) > StatusRank(b.Status)
}

// StatusRank orders booking statuses; unknown statuses rank lowest.
func StatusRank(status string) int {
	switch status {
	case StatusConfirmed:
		return 1
	case StatusRented:
		return 2
	default:
		return 0
	}
}
