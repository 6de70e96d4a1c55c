package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"carpool/internal/modules/identity"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

// memStore serialises transactions with a mutex and restores its state when
// the transaction function fails.
type memStore struct {
	mu       sync.Mutex
	rides    map[types.ID]ride.Ride
	bookings map[types.ID]Booking
	events   []Event
	users    map[types.ID]*identity.User
}

func newMemStore() *memStore {
	return &memStore{
		rides:    map[types.ID]ride.Ride{},
		bookings: map[types.ID]Booking{},
		users:    map[types.ID]*identity.User{},
	}
}

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rides := make(map[types.ID]ride.Ride, len(m.rides))
	for k, v := range m.rides {
		rides[k] = v
	}
	bookings := make(map[types.ID]Booking, len(m.bookings))
	for k, v := range m.bookings {
		bookings[k] = v
	}
	events := len(m.events)

	if err := fn(memTx{m}); err != nil {
		m.rides, m.bookings, m.events = rides, bookings, m.events[:events]
		return err
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memStore) ListByRide(ctx context.Context, rideID types.ID) ([]Passenger, error) {
	byRide, err := m.ListByRides(ctx, []types.ID{rideID})
	return byRide[rideID], err
}

func (m *memStore) ListByRides(_ context.Context, rideIDs []types.ID) (map[types.ID][]Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[types.ID]bool{}
	for _, id := range rideIDs {
		want[id] = true
	}
	out := map[types.ID][]Passenger{}
	for _, b := range m.sortedBookings() {
		if want[b.RideID] {
			out[b.RideID] = append(out[b.RideID], Passenger{Booking: b, Passenger: m.users[b.UserID].Public()})
		}
	}
	return out, nil
}

func (m *memStore) ListByPassenger(_ context.Context, userID types.ID) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, b := range m.sortedBookings() {
		if b.UserID != userID {
			continue
		}
		r := m.rides[b.RideID]
		out = append(out, Trip{Booking: b, Ride: ride.Listing{Ride: r, Driver: m.users[r.CreatedBy].Public()}})
	}
	return out, nil
}

func (m *memStore) sortedBookings() []Booking {
	out := make([]Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Rides

func (m *memStore) GetRide(_ context.Context, id types.ID) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ride(id types.ID) ride.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rides[id]
}

func (m *memStore) status(id types.ID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id].Status
}

type memRides struct{ m *memStore }

func (r memRides) Get(ctx context.Context, id types.ID) (*ride.Ride, error) {
	return r.m.GetRide(ctx, id)
}

func (r memRides) ListByDriver(_ context.Context, driverID types.ID) ([]ride.Ride, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []ride.Ride
	for _, v := range r.m.rides {
		if v.CreatedBy == driverID {
			out = append(out, v)
		}
	}
	return out, nil
}

type memUsers struct{ m *memStore }

func (u memUsers) Get(_ context.Context, id types.ID) (*identity.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

type memTx struct{ m *memStore }

func (t memTx) LockRide(_ context.Context, id types.ID) (*ride.Ride, error) {
	r, ok := t.m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return &r, nil
}

func (t memTx) LockBooking(_ context.Context, id types.ID) (*Booking, error) {
	b, ok := t.m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t memTx) LockBookingFor(_ context.Context, rideID, userID types.ID) (*Booking, error) {
	for _, b := range t.m.bookings {
		if b.RideID == rideID && b.UserID == userID {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (t memTx) Insert(ctx context.Context, b *Booking) error {
	if _, err := t.LockBookingFor(ctx, b.RideID, b.UserID); err == nil {
		return ErrDuplicate
	}
	t.m.bookings[b.ID] = *b
	return nil
}

func (t memTx) SetStatus(_ context.Context, id types.ID, from, to Status, at time.Time) (bool, error) {
	b, ok := t.m.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	t.m.bookings[id] = b
	return true, nil
}

func (t memTx) TakeSeat(_ context.Context, rideID types.ID) (bool, error) {
	r, ok := t.m.rides[rideID]
	if !ok || r.SeatsAvailable <= 0 {
		return false, nil
	}
	r.SeatsAvailable--
	t.m.rides[rideID] = r
	return true, nil
}

func (t memTx) CompleteConfirmed(_ context.Context, rideID types.ID, at time.Time) ([]Booking, error) {
	var out []Booking
	for id, b := range t.m.bookings {
		if b.RideID == rideID && b.Status == StatusConfirmed {
			b.Status = StatusCompleted
			b.UpdatedAt = at
			t.m.bookings[id] = b
			out = append(out, b)
		}
	}
	return out, nil
}

func (t memTx) SetRideStatus(_ context.Context, rideID types.ID, status ride.Status) error {
	r, ok := t.m.rides[rideID]
	if !ok {
		return ride.ErrNotFound
	}
	r.Status = status
	t.m.rides[rideID] = r
	return nil
}

func (t memTx) AppendEvent(_ context.Context, e *Event) error {
	t.m.events = append(t.m.events, *e)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Kind
	}
	return out
}
