package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"carma/internal/domain"
	"carma/internal/models"
)

type expiring struct {
	value     any
	expiresAt time.Time
}

func (e expiring) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func expiryFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	sessions sync.Map
	verified sync.Map
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (r *MemorySessionStore) SaveSession(_ context.Context, session *models.FlowSession, ttl time.Duration) error {
	cp := *session
	r.sessions.Store(session.ID, expiring{value: &cp, expiresAt: expiryFor(ttl)})
	return nil
}

func (r *MemorySessionStore) GetSession(_ context.Context, id string) (*models.FlowSession, error) {
	val, ok := r.sessions.Load(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	entry := val.(expiring)
	if entry.expired(time.Now()) {
		r.sessions.Delete(id)
		return nil, domain.ErrSessionNotFound
	}
	cp := *entry.value.(*models.FlowSession)
	return &cp, nil
}

func (r *MemorySessionStore) MarkVerified(_ context.Context, account string, ttl time.Duration) error {
	r.verified.Store(account, expiring{expiresAt: expiryFor(ttl)})
	return nil
}

func (r *MemorySessionStore) IsVerified(_ context.Context, account string) (bool, error) {
	val, ok := r.verified.Load(account)
	if !ok {
		return false, nil
	}
	if val.(expiring).expired(time.Now()) {
		r.verified.Delete(account)
		return false, nil
	}
	return true, nil
}

// MemoryBookingRepository keeps bookings in process memory.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]models.Booking
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]models.Booking)}
}

func (r *MemoryBookingRepository) CreateBooking(_ context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		return domain.ErrDuplicateBooking
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}
	r.bookings[booking.ID] = *booking
	return nil
}

func (r *MemoryBookingRepository) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryBookingRepository) BookingExists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bookings[id]
	return ok, nil
}

func (r *MemoryBookingRepository) GetBookingsByAccount(_ context.Context, account string) ([]*models.Booking, error) {
	return r.filter(func(b *models.Booking) bool { return b.Account == account }), nil
}

func (r *MemoryBookingRepository) ListBookings(_ context.Context) ([]*models.Booking, error) {
	return r.filter(func(*models.Booking) bool { return true }), nil
}

func (r *MemoryBookingRepository) MarkRented(_ context.Context, id string, at time.Time) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if !b.CanTransitionTo(models.StatusRented) {
		return nil, domain.ErrInvalidTransition
	}
	b.Status = models.StatusRented
	b.RentedAt = &at
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryBookingRepository) filter(keep func(*models.Booking) bool) []*models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		if keep(&b) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
