// README: Identity service: registration, login, profile lookups, and mode switching.
package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

const minPasswordLen = 8

type Repository interface {
	Create(ctx context.Context, u *User) error
	CreateIfMissing(ctx context.Context, u *User) (bool, error)
	Get(ctx context.Context, id types.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateMode(ctx context.Context, id types.ID, mode Mode, v *Vehicle) error
}

type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
	log    *zap.Logger
}

// NewService builds the identity service. tokens may be nil when tokens are
// issued by an external provider; Register and Login then return no token.
func NewService(repo Repository, tokens TokenIssuer, log *zap.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, log: log.Named("identity")}
}

type RegisterCommand struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type SwitchModeCommand struct {
	UserID  types.ID
	Mode    Mode
	Vehicle *Vehicle
}

// ProvisionCommand carries the identity asserted by an external token.
type ProvisionCommand struct {
	UserID   types.ID
	Email    string
	Name     string
	PhotoURL string
}

type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token,omitempty"`
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("Invalid email address")
	}
	if len(cmd.Password) < minPasswordLen {
		return nil, apperr.Validation("Password must be at least %d characters", minPasswordLen)
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, apperr.Validation("Name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	u := &User{
		ID:           types.NewID(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(cmd.Name),
		Phone:        strings.TrimSpace(cmd.Phone),
		Mode:         ModePassenger,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", string(u.ID)))
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	return s.session(u)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) SwitchMode(ctx context.Context, cmd SwitchModeCommand) (*User, error) {
	if !cmd.Mode.Valid() {
		return nil, apperr.Validation("Mode must be passenger or driver")
	}
	u, err := s.repo.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	vehicle := cmd.Vehicle
	if cmd.Mode == ModeDriver {
		if vehicle == nil {
			vehicle = u.Vehicle
		}
		if vehicle == nil || strings.TrimSpace(vehicle.Model) == "" || strings.TrimSpace(vehicle.Plate) == "" {
			return nil, apperr.Validation("Vehicle model and plate are required to drive")
		}
	}
	if err := s.repo.UpdateMode(ctx, cmd.UserID, cmd.Mode, vehicle); err != nil {
		return nil, err
	}
	s.log.Info("user mode switched", zap.String("user_id", string(cmd.UserID)), zap.String("mode", string(cmd.Mode)))
	return s.repo.Get(ctx, cmd.UserID)
}

// Provision returns the user for an externally verified token, creating the
// row on first sight. Provisioned users have no password and cannot Login.
func (s *Service) Provision(ctx context.Context, cmd ProvisionCommand) (*User, error) {
	u, err := s.repo.Get(ctx, cmd.UserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Unauthorized("Token carries no usable email")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u = &User{
		ID:        cmd.UserID,
		Email:     email,
		Name:      name,
		PhotoURL:  cmd.PhotoURL,
		Mode:      ModePassenger,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.repo.CreateIfMissing(ctx, u)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("user provisioned", zap.String("user_id", string(u.ID)))
		return u, nil
	}
	// Lost a race with a concurrent first request, or the email belongs to
	// another account.
	u, err = s.repo.Get(ctx, cmd.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Duplicate("Email already registered")
	}
	return u, err
}

func (s *Service) session(u *User) (*Session, error) {
	if s.tokens == nil {
		return &Session{User: u}, nil
	}
	token, err := s.tokens.Issue(string(u.ID), u.Email)
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &Session{User: u, Token: token}, nil
}
