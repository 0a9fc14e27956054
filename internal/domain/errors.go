package domain

import "errors"

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrDuplicateBooking  = errors.New("booking id already exists")
	ErrInvalidTransition = errors.New("booking status cannot move backwards")
	ErrSessionNotFound   = errors.New("session not found")
	ErrCarNotFound       = errors.New("car not found")
)
