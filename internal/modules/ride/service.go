// README: Ride inventory service: publish, look up, search, and delete rides.
package ride

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carpool/internal/apperr"
	"carpool/internal/maps"
	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	GetListing(ctx context.Context, id types.ID) (*Listing, error)
	Search(ctx context.Context, q Query) ([]Listing, int, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error)
	Delete(ctx context.Context, id types.ID, guard func(r *Ride, bookings int) error) error
}

// Users resolves the caller's current operating mode.
type Users interface {
	Get(ctx context.Context, id types.ID) (*identity.User, error)
}

// DistanceEstimator returns a route distance in kilometres.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, origin, destination types.Point) (float64, error)
}

// Locator is an optional DistanceEstimator capability that geocodes addresses
// submitted without coordinates.
type Locator interface {
	Locate(ctx context.Context, address string) (types.Point, error)
}

type Service struct {
	repo     Repository
	users    Users
	distance DistanceEstimator
	maxLimit int
	log      *zap.Logger
	now      func() time.Time
}

// NewService builds the ride service. distance may be nil, in which case
// omitted distances are filled with the great-circle distance.
func NewService(repo Repository, users Users, distance DistanceEstimator, maxLimit int, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		distance: distance,
		maxLimit: maxLimit,
		log:      log.Named("ride"),
		now:      time.Now,
	}
}

type CreateCommand struct {
	DriverID       types.ID
	Pickup         types.Location
	Dropoff        types.Location
	DepartureTime  time.Time
	ArrivalTime    time.Time
	Price          decimal.Decimal
	SeatsAvailable int
	DistanceKm     float64
}

func (c CreateCommand) validate() error {
	switch {
	case strings.TrimSpace(c.Pickup.Address) == "":
		return apperr.Validation("Pickup location is required")
	case strings.TrimSpace(c.Dropoff.Address) == "":
		return apperr.Validation("Dropoff location is required")
	case c.DepartureTime.IsZero() || c.ArrivalTime.IsZero():
		return apperr.Validation("Departure and arrival times are required")
	case !c.DepartureTime.Before(c.ArrivalTime):
		return apperr.Validation("Departure time must be before arrival time")
	case c.Price.IsNegative():
		return apperr.Validation("Price cannot be negative")
	case c.SeatsAvailable < 1 || c.SeatsAvailable > MaxSeats:
		return apperr.Validation("Seats available must be between 1 and %d", MaxSeats)
	case c.DistanceKm < 0:
		return apperr.Validation("Distance cannot be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	driver, err := s.users.Get(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if err := identity.RequireMode(driver, identity.ModeDriver); err != nil {
		return nil, err
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	cmd.Pickup = s.locate(ctx, cmd.Pickup)
	cmd.Dropoff = s.locate(ctx, cmd.Dropoff)

	distance := cmd.DistanceKm
	if distance == 0 {
		distance = s.estimateDistance(ctx, cmd.Pickup.Point(), cmd.Dropoff.Point())
	}

	r := &Ride{
		ID:             types.NewID(),
		CreatedBy:      cmd.DriverID,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
		DepartureTime:  cmd.DepartureTime.UTC(),
		ArrivalTime:    cmd.ArrivalTime.UTC(),
		Price:          cmd.Price,
		Capacity:       cmd.SeatsAvailable,
		SeatsAvailable: cmd.SeatsAvailable,
		DistanceKm:     distance,
		Status:         StatusUpcoming,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("ride created",
		zap.String("ride_id", string(r.ID)),
		zap.String("actor_id", string(r.CreatedBy)),
		zap.Int("seats", r.Capacity),
	)
	return r, nil
}

func (s *Service) locate(ctx context.Context, l types.Location) types.Location {
	loc, ok := s.distance.(Locator)
	if !ok || l.Lat != 0 || l.Lng != 0 {
		return l
	}
	p, err := loc.Locate(ctx, l.Address)
	if err != nil {
		s.log.Warn("address lookup failed", zap.String("address", l.Address), zap.Error(err))
		return l
	}
	l.Lat, l.Lng = p.Lat, p.Lng
	return l
}

func (s *Service) estimateDistance(ctx context.Context, from, to types.Point) float64 {
	if s.distance != nil {
		km, err := s.distance.DistanceKm(ctx, from, to)
		if err == nil {
			return maps.RoundKm(km)
		}
		s.log.Warn("route distance lookup failed, using great-circle distance", zap.Error(err))
	}
	return maps.RoundKm(maps.HaversineKm(from, to))
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Listing, error) {
	return s.repo.GetListing(ctx, id)
}

// Search runs a normalised query. Only rides with free seats that have not yet
// arrived are visible.
func (s *Service) Search(ctx context.Context, q Query) (*Page, error) {
	q.Limit = clamp(q.Limit, 1, s.maxLimit)
	q.Page = clampPage(q.Page, q.Limit)
	rides, total, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Page{Rides: rides, Total: total, Page: q.Page, TotalPages: totalPages(total, q.Limit)}, nil
}

// SearchParams parses raw parameters against the configured page size limit
// and runs the search.
func (s *Service) SearchParams(ctx context.Context, p SearchParams) (*Page, error) {
	q, err := ParseQuery(p, s.maxLimit)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, q)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	return s.repo.ListByDriver(ctx, driverID)
}

// Delete removes a ride that never received a booking. Only its driver may do so.
func (s *Service) Delete(ctx context.Context, id, actorID types.ID) error {
	err := s.repo.Delete(ctx, id, func(r *Ride, bookings int) error {
		if r.CreatedBy != actorID {
			return ErrNotOwner
		}
		if bookings > 0 {
			return ErrHasBookings
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("ride deleted", zap.String("ride_id", string(id)), zap.String("actor_id", string(actorID)))
	return nil
}
