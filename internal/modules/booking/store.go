// README: Booking store backed by PostgreSQL. Lifecycle writes go through
// pgTx, which holds row locks until commit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/infra"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

const bookingColumns = `b.id, b.ride_id, b.user_id, b.status, b.reviewed, b.created_at, b.updated_at`

const passengerColumns = `p.id, p.name, p.phone, p.rating, p.photo_url`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// InTx runs fn in a read-committed transaction and commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1`, string(id))
	return scanBooking(row)
}

func (s *Store) ListByRide(ctx context.Context, rideID types.ID) ([]Passenger, error) {
	byRide, err := s.ListByRides(ctx, []types.ID{rideID})
	if err != nil {
		return nil, err
	}
	if out := byRide[rideID]; out != nil {
		return out, nil
	}
	return []Passenger{}, nil
}

// ListByRides groups the bookings of several rides, oldest request first.
func (s *Store) ListByRides(ctx context.Context, rideIDs []types.ID) (map[types.ID][]Passenger, error) {
	out := make(map[types.ID][]Passenger, len(rideIDs))
	if len(rideIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(rideIDs))
	for i, id := range rideIDs {
		ids[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
        SELECT `+bookingColumns+`, `+passengerColumns+`
        FROM bookings b
        JOIN users p ON p.id = b.user_id
        WHERE b.ride_id = ANY($1)
        ORDER BY b.created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list ride bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Passenger
		var status string
		err := rows.Scan(
			&p.ID, &p.RideID, &p.UserID, &status, &p.Reviewed, &p.CreatedAt, &p.UpdatedAt,
			&p.Passenger.ID, &p.Passenger.Name, &p.Passenger.Phone, &p.Passenger.Rating, &p.Passenger.PhotoURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ride booking: %w", err)
		}
		p.Status = Status(status)
		out[p.RideID] = append(out[p.RideID], p)
	}
	return out, rows.Err()
}

// ListByPassenger returns the user's bookings with ride and driver, newest
// departure first.
func (s *Store) ListByPassenger(ctx context.Context, userID types.ID) ([]Trip, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+bookingColumns+`, `+ride.Columns+`, `+ride.DriverColumns+`
        FROM bookings b
        JOIN rides r ON r.id = b.ride_id
        JOIN users u ON u.id = r.created_by
        WHERE b.user_id = $1
        ORDER BY r.departure_time DESC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list passenger bookings: %w", err)
	}
	defer rows.Close()

	out := []Trip{}
	for rows.Next() {
		var t Trip
		var status string
		dest := []any{&t.ID, &t.RideID, &t.UserID, &status, &t.Reviewed, &t.CreatedAt, &t.UpdatedAt}
		l, err := ride.ScanListingInto(rows, dest...)
		if err != nil {
			return nil, err
		}
		t.Status = Status(status)
		t.Ride = *l
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockRide(ctx context.Context, rideID types.ID) (*ride.Ride, error) {
	return ride.Scan(t.tx.QueryRow(ctx, `SELECT `+ride.Columns+` FROM rides r WHERE r.id = $1 FOR UPDATE`, string(rideID)))
}

func (t *pgTx) LockBooking(ctx context.Context, id types.ID) (*Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1 FOR UPDATE`, string(id)))
}

func (t *pgTx) LockBookingFor(ctx context.Context, rideID, userID types.ID) (*Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, `
        SELECT `+bookingColumns+` FROM bookings b
        WHERE b.ride_id = $1 AND b.user_id = $2
        FOR UPDATE`, string(rideID), string(userID)))
}

func (t *pgTx) Insert(ctx context.Context, b *Booking) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO bookings (id, ride_id, user_id, status, reviewed, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(b.ID), string(b.RideID), string(b.UserID), string(b.Status), b.Reviewed, b.CreatedAt, b.UpdatedAt,
	)
	if infra.IsUniqueViolation(err, "bookings_ride_user_key") {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE bookings SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4`,
		string(to), at, string(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) TakeSeat(ctx context.Context, rideID types.ID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE rides SET seats_available = seats_available - 1
        WHERE id = $1 AND seats_available > 0`, string(rideID))
	if infra.IsCheckViolation(err, "rides_seats_available_check") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("take seat: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) CompleteConfirmed(ctx context.Context, rideID types.ID, at time.Time) ([]Booking, error) {
	rows, err := t.tx.Query(ctx, `
        UPDATE bookings b SET status = 'completed', updated_at = $2
        WHERE b.ride_id = $1 AND b.status = 'confirmed'
        RETURNING `+bookingColumns, string(rideID), at)
	if err != nil {
		return nil, fmt.Errorf("complete bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *pgTx) SetRideStatus(ctx context.Context, rideID types.ID, status ride.Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE rides SET status = $1 WHERE id = $2`, string(status), string(rideID))
	if err != nil {
		return fmt.Errorf("update ride status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != "" {
		a := string(e.ActorID)
		actor = &a
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO booking_events (booking_id, from_status, to_status, actor_id, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		string(e.BookingID), string(e.FromStatus), string(e.ToStatus), actor, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append booking event: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(&b.ID, &b.RideID, &b.UserID, &status, &b.Reviewed, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = Status(status)
	return &b, nil
}
