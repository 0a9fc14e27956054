package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carma/internal/models"

	"github.com/mattn/go-sqlite3"
)

const bookingColumns = `id, car_id, car_name, car_image, pickup_date, return_date, location,
	total_price, status, account, tx_hash, code_source, created_at, rented_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}

	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		booking.ID,
		booking.CarID,
		booking.CarName,
		booking.CarImage,
		booking.PickupDate,
		booking.ReturnDate,
		booking.Location,
		booking.TotalPrice,
		booking.Status,
		booking.Account,
		booking.TxHash,
		booking.CodeSource,
		booking.CreatedAt,
		nullTime(booking.RentedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicateBooking, booking.ID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) BookingExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check booking: %w", err)
	}
	return n > 0, nil
}

func (db *DB) GetBookingsByAccount(ctx context.Context, account string) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE account = ? ORDER BY created_at DESC`, account)
}

func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
}

// MarkRented moves a confirmed booking to rented in a single conditional update.
func (db *DB) MarkRented(ctx context.Context, id string, at time.Time) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, rented_at = ? WHERE id = ? AND status = ?`,
		models.StatusRented, at, id, models.StatusConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get booking status: %w", err)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, status)
	}

	booking, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b        models.Booking
		rentedAt sql.NullTime
	)
	err := row.Scan(
		&b.ID,
		&b.CarID,
		&b.CarName,
		&b.CarImage,
		&b.PickupDate,
		&b.ReturnDate,
		&b.Location,
		&b.TotalPrice,
		&b.Status,
		&b.Account,
		&b.TxHash,
		&b.CodeSource,
		&b.CreatedAt,
		&rentedAt,
	)
	if err != nil {
		return nil, err
	}
	if rentedAt.Valid {
		t := rentedAt.Time
		b.RentedAt = &t
	}
	return &b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
