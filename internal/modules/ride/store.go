// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"carpool/internal/infra"
	"carpool/internal/types"
)

// Columns selects a ride aliased as r. Pair it with Scan.
const Columns = `r.id, r.created_by,
       r.pickup_address, r.pickup_lat, r.pickup_lng,
       r.dropoff_address, r.dropoff_lat, r.dropoff_lng,
       r.departure_time, r.arrival_time, r.price::text, r.capacity, r.seats_available,
       r.distance_km, r.status, r.created_at`

// DriverColumns selects the public profile of a driver aliased as u.
const DriverColumns = `u.id, u.name, u.phone, u.rating, u.photo_url`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO rides (
            id, created_by,
            pickup_address, pickup_lat, pickup_lng,
            dropoff_address, dropoff_lat, dropoff_lng,
            departure_time, arrival_time, price, capacity, seats_available,
            distance_km, status, created_at
        ) VALUES (
            $1, $2,
            $3, $4, $5,
            $6, $7, $8,
            $9, $10, $11::numeric, $12, $13,
            $14, $15, $16
        )`,
		string(r.ID), string(r.CreatedBy),
		r.Pickup.Address, r.Pickup.Lat, r.Pickup.Lng,
		r.Dropoff.Address, r.Dropoff.Lat, r.Dropoff.Lng,
		r.DepartureTime, r.ArrivalTime, r.Price.String(), r.Capacity, r.SeatsAvailable,
		r.DistanceKm, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+Columns+` FROM rides r WHERE r.id = $1`, string(id))
	return Scan(row)
}

func (s *Store) GetListing(ctx context.Context, id types.ID) (*Listing, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+Columns+`, `+DriverColumns+`
        FROM rides r
        JOIN users u ON u.id = r.created_by
        WHERE r.id = $1`, string(id))
	return scanListing(row)
}

// Search returns one page of bookable rides and the total match count.
func (s *Store) Search(ctx context.Context, q Query) ([]Listing, int, error) {
	where, args := searchWhere(q)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM rides r WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rides: %w", err)
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	args = append(args, q.Limit, q.Offset())
	rows, err := s.db.Query(ctx, `
        SELECT `+Columns+`, `+DriverColumns+`
        FROM rides r
        JOIN users u ON u.id = r.created_by
        WHERE `+where+`
        ORDER BY `+q.SortBy.column()+` `+dir+`
        LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search rides: %w", err)
	}
	defer rows.Close()

	out := make([]Listing, 0, q.Limit)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search rides: %w", err)
	}
	return out, total, nil
}

func searchWhere(q Query) (string, []any) {
	conds := []string{"r.seats_available > 0", "r.arrival_time > NOW()", "r.status = 'upcoming'"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if q.Pickup != "" {
		add("r.pickup_address ILIKE '%' || ? || '%'", q.Pickup)
	}
	if q.Dropoff != "" {
		add("r.dropoff_address ILIKE '%' || ? || '%'", q.Dropoff)
	}
	if q.Date != nil {
		add("(r.departure_time AT TIME ZONE 'UTC')::date = ?::date", q.Date.Format(dateLayout))
	}
	if q.MaxPrice != nil {
		add("r.price <= ?::numeric", q.MaxPrice.String())
	}
	if q.MinSeats > 0 {
		add("r.seats_available >= ?", q.MinSeats)
	}
	return strings.Join(conds, " AND "), args
}

// ListByDriver returns every ride the driver created, newest departure first.
func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+Columns+`
        FROM rides r
        WHERE r.created_by = $1
        ORDER BY r.departure_time DESC`, string(driverID))
	if err != nil {
		return nil, fmt.Errorf("list driver rides: %w", err)
	}
	defer rows.Close()

	var out []Ride
	for rows.Next() {
		r, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete locks the ride, lets guard inspect it with its booking count, and
// removes it when guard returns nil.
func (s *Store) Delete(ctx context.Context, id types.ID, guard func(r *Ride, bookings int) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := Scan(tx.QueryRow(ctx, `SELECT `+Columns+` FROM rides r WHERE r.id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return err
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE ride_id = $1`, string(id)).Scan(&n); err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if err := guard(r, n); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, string(id)); err != nil {
		if infra.IsForeignKeyViolation(err) {
			return ErrHasBookings
		}
		return fmt.Errorf("delete ride: %w", err)
	}
	return tx.Commit(ctx)
}

// Scan reads a row selected with Columns.
func Scan(row pgx.Row) (*Ride, error) {
	var r Ride
	var price, status string
	err := row.Scan(rideDest(&r, &price, &status)...)
	return finishScan(&r, price, status, err)
}

func scanListing(row pgx.Row) (*Listing, error) {
	return ScanListingInto(row)
}

// ScanListingInto reads a row whose trailing columns are Columns followed by
// DriverColumns. Leading columns are scanned into prefix.
func ScanListingInto(row pgx.Row, prefix ...any) (*Listing, error) {
	var l Listing
	var price, status string
	dest := append(prefix, rideDest(&l.Ride, &price, &status)...)
	dest = append(dest, &l.Driver.ID, &l.Driver.Name, &l.Driver.Phone, &l.Driver.Rating, &l.Driver.PhotoURL)
	if _, err := finishScan(&l.Ride, price, status, row.Scan(dest...)); err != nil {
		return nil, err
	}
	return &l, nil
}

func rideDest(r *Ride, price, status *string) []any {
	return []any{
		&r.ID, &r.CreatedBy,
		&r.Pickup.Address, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.Dropoff.Address, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.DepartureTime, &r.ArrivalTime, price, &r.Capacity, &r.SeatsAvailable,
		&r.DistanceKm, status, &r.CreatedAt,
	}
}

func finishScan(r *Ride, price, status string, err error) (*Ride, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse ride price %q: %w", price, err)
	}
	r.Price = p
	r.Status = Status(status)
	return r, nil
}
