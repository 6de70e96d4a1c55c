package promptquota

import (
	"context"
	"errors"

	"carpool/internal/types"
)

type Repository interface {
	Use(ctx context.Context, uid types.ID) error
	EnsureUser(ctx context.Context, uid types.ID) error
}

// Service meters prompt searches per user and month.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Use deducts one prompt from the user's monthly allowance.
// A user without a row yet is initialised and charged immediately.
func (s *Service) Use(ctx context.Context, uid types.ID) error {
	err := s.repo.Use(ctx, uid)
	if !errors.Is(err, ErrExhausted) {
		return err
	}

	// Row may be missing: create it, then retry the deduction once.
	if initErr := s.repo.EnsureUser(ctx, uid); initErr != nil {
		return initErr
	}
	return s.repo.Use(ctx, uid)
}
