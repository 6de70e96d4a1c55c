package promptquota

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/types"
)

// Store handles prompt_usage persistence.
type Store struct {
	db      *pgxpool.Pool
	monthly int
	now     func() time.Time
}

// NewStore returns a Store granting monthly prompts per user.
func NewStore(db *pgxpool.Pool, monthly int) *Store {
	if monthly <= 0 {
		monthly = DefaultMonthlyPrompts
	}
	return &Store{db: db, monthly: monthly, now: time.Now}
}

// Use atomically checks the monthly quota and deducts one prompt.
// The counter is reset when last_reset_month is behind the current month.
// Returns ErrExhausted when 0 rows are updated (quota used up or user absent).
func (s *Store) Use(ctx context.Context, uid types.ID) error {
	month := s.now().UTC().Format(monthLayout)

	tag, err := s.db.Exec(ctx, `
		UPDATE prompt_usage SET
			prompts_remaining = CASE WHEN last_reset_month != $1 THEN $2 - 1 ELSE prompts_remaining - 1 END,
			last_reset_month = $1
		WHERE uid = $3 AND (last_reset_month < $1 OR prompts_remaining > 0)
	`, month, s.monthly, string(uid))
	if err != nil {
		return fmt.Errorf("use prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExhausted
	}
	return nil
}

// EnsureUser inserts a prompt_usage row with the full allowance. An existing
// row is left untouched.
func (s *Store) EnsureUser(ctx context.Context, uid types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO prompt_usage (uid, prompts_remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, string(uid), s.monthly, s.now().UTC().Format(monthLayout))
	if err != nil {
		return fmt.Errorf("ensure prompt usage: %w", err)
	}
	return nil
}
