// README: User store backed by PostgreSQL.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/apperr"
	"carpool/internal/infra"
	"carpool/internal/types"
)

const userColumns = `id, email, password_hash, name, phone, photo_url, mode,
       vehicle_model, vehicle_color, vehicle_plate, rating, rating_count, created_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, name, phone, photo_url, mode, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(u.ID), strings.ToLower(u.Email), u.PasswordHash, u.Name, u.Phone, u.PhotoURL, string(u.Mode), u.CreatedAt,
	)
	if infra.IsUniqueViolation(err, "") {
		return apperr.Duplicate("Email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateIfMissing inserts u unless a row with the same id or email exists.
// It reports whether a row was written.
func (s *Store) CreateIfMissing(ctx context.Context, u *User) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        INSERT INTO users (id, email, name, photo_url, mode, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT DO NOTHING`,
		string(u.ID), strings.ToLower(u.Email), u.Name, u.PhotoURL, string(u.Mode), u.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("provision user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id))
	return scanUser(row)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return scanUser(row)
}

func (s *Store) UpdateMode(ctx context.Context, id types.ID, mode Mode, v *Vehicle) error {
	var model, color, plate *string
	if v != nil {
		model, color, plate = &v.Model, &v.Color, &v.Plate
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE users
        SET mode = $2,
            vehicle_model = COALESCE($3, vehicle_model),
            vehicle_color = COALESCE($4, vehicle_color),
            vehicle_plate = COALESCE($5, vehicle_plate)
        WHERE id = $1`,
		string(id), string(mode), model, color, plate,
	)
	if err != nil {
		return fmt.Errorf("update user mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var mode string
	var model, color, plate sql.NullString
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.PhotoURL, &mode,
		&model, &color, &plate, &u.Rating, &u.RatingCount, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Mode = Mode(mode)
	if model.Valid || color.Valid || plate.Valid {
		u.Vehicle = &Vehicle{Model: model.String, Color: color.String, Plate: plate.String}
	}
	return &u, nil
}
