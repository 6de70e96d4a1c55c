// README: Review store backed by PostgreSQL.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/infra"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

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

// ListForUser returns reviews received by the user, newest first.
func (s *Store) ListForUser(ctx context.Context, userID types.ID) ([]View, error) {
	rows, err := s.db.Query(ctx, `
        SELECT v.id, v.ride_id, v.reviewer_id, v.reviewee_id, v.rating, v.comment, v.role, v.created_at,
               u.id, u.name, u.phone, u.rating, u.photo_url,
               r.id, r.pickup_address, r.pickup_lat, r.pickup_lng,
               r.dropoff_address, r.dropoff_lat, r.dropoff_lng, r.departure_time
        FROM reviews v
        JOIN users u ON u.id = v.reviewer_id
        JOIN rides r ON r.id = v.ride_id
        WHERE v.reviewee_id = $1
        ORDER BY v.created_at DESC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := []View{}
	for rows.Next() {
		var v View
		err := rows.Scan(
			&v.ID, &v.RideID, &v.ReviewerID, &v.RevieweeID, &v.Rating, &v.Comment, &v.Role, &v.CreatedAt,
			&v.Reviewer.ID, &v.Reviewer.Name, &v.Reviewer.Phone, &v.Reviewer.Rating, &v.Reviewer.PhotoURL,
			&v.Ride.ID, &v.Ride.Pickup.Address, &v.Ride.Pickup.Lat, &v.Ride.Pickup.Lng,
			&v.Ride.Dropoff.Address, &v.Ride.Dropoff.Lat, &v.Ride.Dropoff.Lng, &v.Ride.DepartureTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetRide(ctx context.Context, rideID types.ID) (*ride.Ride, error) {
	return ride.Scan(t.tx.QueryRow(ctx, `SELECT `+ride.Columns+` FROM rides r WHERE r.id = $1`, string(rideID)))
}

func (t *pgTx) Exists(ctx context.Context, rideID, reviewerID types.ID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM reviews WHERE ride_id = $1 AND reviewer_id = $2)`,
		string(rideID), string(reviewerID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

func (t *pgTx) BookingStatus(ctx context.Context, rideID, userID types.ID) (booking.Status, error) {
	var status string
	err := t.tx.QueryRow(ctx, `
        SELECT status FROM bookings WHERE ride_id = $1 AND user_id = $2`,
		string(rideID), string(userID),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", booking.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read booking status: %w", err)
	}
	return booking.Status(status), nil
}

func (t *pgTx) LockAggregate(ctx context.Context, userID types.ID) (Aggregate, error) {
	var a Aggregate
	err := t.tx.QueryRow(ctx, `
        SELECT rating_sum, rating_count FROM users WHERE id = $1 FOR UPDATE`, string(userID),
	).Scan(&a.Sum, &a.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aggregate{}, identity.ErrNotFound
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("lock rating: %w", err)
	}
	return a, nil
}

func (t *pgTx) Insert(ctx context.Context, r *Review) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO reviews (id, ride_id, reviewer_id, reviewee_id, rating, comment, role, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(r.ID), string(r.RideID), string(r.ReviewerID), string(r.RevieweeID),
		r.Rating, r.Comment, r.Role, r.CreatedAt,
	)
	if infra.IsUniqueViolation(err, "reviews_ride_reviewer_key") {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (t *pgTx) SetAggregate(ctx context.Context, userID types.ID, a Aggregate) error {
	_, err := t.tx.Exec(ctx, `
        UPDATE users SET rating_sum = $2, rating_count = $3, rating = $4
        WHERE id = $1`,
		string(userID), a.Sum, a.Count, a.Mean(),
	)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}

func (t *pgTx) MarkReviewed(ctx context.Context, rideID, userID types.ID) error {
	_, err := t.tx.Exec(ctx, `
        UPDATE bookings SET reviewed = TRUE WHERE ride_id = $1 AND user_id = $2`,
		string(rideID), string(userID),
	)
	if err != nil {
		return fmt.Errorf("mark booking reviewed: %w", err)
	}
	return nil
}
