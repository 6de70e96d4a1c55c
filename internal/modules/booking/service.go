// README: Booking lifecycle engine: request, confirm, reject, complete, and
// the read paths. Seat accounting happens inside one transaction per call.
package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/observability"
	"carpool/internal/types"
)

// Tx is the unit of work a lifecycle operation runs in. Callers lock the ride
// before any of its bookings.
type Tx interface {
	LockRide(ctx context.Context, rideID types.ID) (*ride.Ride, error)
	LockBooking(ctx context.Context, id types.ID) (*Booking, error)
	LockBookingFor(ctx context.Context, rideID, userID types.ID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) (bool, error)
	// TakeSeat decrements the ride's free seats when one is left.
	TakeSeat(ctx context.Context, rideID types.ID) (bool, error)
	CompleteConfirmed(ctx context.Context, rideID types.ID, at time.Time) ([]Booking, error)
	SetRideStatus(ctx context.Context, rideID types.ID, status ride.Status) error
	AppendEvent(ctx context.Context, e *Event) error
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	ListByRide(ctx context.Context, rideID types.ID) ([]Passenger, error)
	ListByRides(ctx context.Context, rideIDs []types.ID) (map[types.ID][]Passenger, error)
	ListByPassenger(ctx context.Context, userID types.ID) ([]Trip, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*identity.User, error)
}

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]ride.Ride, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

type Service struct {
	repo   Repository
	rides  Rides
	users  Users
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, rides Rides, users Users, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		rides:  rides,
		users:  users,
		notify: notifier,
		log:    log.Named("booking"),
		now:    time.Now,
	}
}

// Request creates a pending booking. No seat is reserved until the driver
// confirms, so several pending requests may compete for the last seat.
func (s *Service) Request(ctx context.Context, rideID, passengerID types.ID) (*Booking, error) {
	passenger, err := s.users.Get(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	if err := identity.RequireMode(passenger, identity.ModePassenger); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var b *Booking
	var r *ride.Ride
	err = s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		r, err = tx.LockRide(ctx, rideID)
		if err != nil {
			return err
		}
		switch {
		case r.Status != ride.StatusUpcoming:
			return ErrRideClosed
		case !r.DepartureTime.After(now):
			return ErrDeparted
		case r.SeatsAvailable <= 0:
			// Requests need a free seat; a full ride rejects new requests
			// rather than queueing them. Pending requests may still outnumber
			// free seats and lose at Confirm.
			return ErrNoSeats
		}
		if _, err := tx.LockBookingFor(ctx, rideID, passengerID); err == nil {
			return ErrDuplicate
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		b = &Booking{
			ID:        types.NewID(),
			RideID:    rideID,
			UserID:    passengerID,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Insert(ctx, b); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &Event{BookingID: b.ID, FromStatus: StatusNone, ToStatus: StatusPending, ActorID: passengerID, CreatedAt: now})
	})
	if err != nil {
		s.observeConflict(err)
		return nil, err
	}

	s.committed(b, StatusNone, passengerID)
	s.send(ctx, notify.KindBookingRequested, r.CreatedBy, r, b, passenger.Name)
	return b, nil
}

// Confirm accepts a pending booking and takes one seat from the ride in the
// same transaction. The seat count is re-checked under the ride's row lock.
func (s *Service) Confirm(ctx context.Context, bookingID, driverID types.ID) (*Booking, error) {
	b, r, err := s.decide(ctx, bookingID, driverID, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.send(ctx, notify.KindBookingConfirmed, b.UserID, r, b, s.name(ctx, driverID))
	return b, nil
}

// Reject declines a pending booking. Seats are untouched since none was taken.
func (s *Service) Reject(ctx context.Context, bookingID, driverID types.ID) (*Booking, error) {
	b, r, err := s.decide(ctx, bookingID, driverID, StatusRejected)
	if err != nil {
		return nil, err
	}
	s.send(ctx, notify.KindBookingRejected, b.UserID, r, b, s.name(ctx, driverID))
	return b, nil
}

func (s *Service) decide(ctx context.Context, bookingID, driverID types.ID, to Status) (*Booking, *ride.Ride, error) {
	current, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	var b *Booking
	var r *ride.Ride
	var from Status
	err = s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		r, err = tx.LockRide(ctx, current.RideID)
		if err != nil {
			return err
		}
		if r.CreatedBy != driverID {
			return ErrNotRideDriver
		}
		if r.Status != ride.StatusUpcoming {
			return ErrRideClosed
		}
		b, err = tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		from = b.Status
		if !CanTransition(from, to) {
			return errInvalidTransition(from, to)
		}
		if to == StatusConfirmed {
			ok, err := tx.TakeSeat(ctx, r.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNoSeats
			}
			r.SeatsAvailable--
		}
		if ok, err := tx.SetStatus(ctx, b.ID, from, to, now); err != nil {
			return err
		} else if !ok {
			return errInvalidTransition(from, to)
		}
		b.Status = to
		b.UpdatedAt = now
		return tx.AppendEvent(ctx, &Event{BookingID: b.ID, FromStatus: from, ToStatus: to, ActorID: driverID, CreatedAt: now})
	})
	if err != nil {
		s.observeConflict(err)
		return nil, nil, err
	}
	s.committed(b, from, driverID)
	return b, r, nil
}

// Complete closes a ride. The driver completes it for every confirmed
// passenger and the ride itself; a confirmed passenger completes only their
// own booking.
func (s *Service) Complete(ctx context.Context, rideID, actorID types.ID) (*Completion, error) {
	now := s.now().UTC()
	var r *ride.Ride
	var completed []Booking
	var by CompletedBy
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		r, err = tx.LockRide(ctx, rideID)
		if err != nil {
			return err
		}

		if r.CreatedBy == actorID {
			by = CompletedByDriver
			if r.Status == ride.StatusCompleted {
				return ErrRideCompleted
			}
			completed, err = tx.CompleteConfirmed(ctx, rideID, now)
			if err != nil {
				return err
			}
			if err := tx.SetRideStatus(ctx, rideID, ride.StatusCompleted); err != nil {
				return err
			}
			r.Status = ride.StatusCompleted
			for _, b := range completed {
				e := &Event{BookingID: b.ID, FromStatus: StatusConfirmed, ToStatus: StatusCompleted, ActorID: actorID, CreatedAt: now}
				if err := tx.AppendEvent(ctx, e); err != nil {
					return err
				}
			}
			return nil
		}

		by = CompletedByPassenger
		b, err := tx.LockBookingFor(ctx, rideID, actorID)
		if errors.Is(err, ErrNotFound) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}
		switch b.Status {
		case StatusConfirmed:
		case StatusCompleted:
			return errInvalidTransition(b.Status, StatusCompleted)
		default:
			return ErrNotParticipant
		}
		if ok, err := tx.SetStatus(ctx, b.ID, StatusConfirmed, StatusCompleted, now); err != nil {
			return err
		} else if !ok {
			return errInvalidTransition(b.Status, StatusCompleted)
		}
		b.Status = StatusCompleted
		b.UpdatedAt = now
		completed = []Booking{*b}
		return tx.AppendEvent(ctx, &Event{BookingID: b.ID, FromStatus: StatusConfirmed, ToStatus: StatusCompleted, ActorID: actorID, CreatedAt: now})
	})
	if err != nil {
		s.observeConflict(err)
		return nil, err
	}

	for i := range completed {
		s.committed(&completed[i], StatusConfirmed, actorID)
	}
	s.log.Info("ride completion recorded",
		zap.String("ride_id", string(rideID)),
		zap.String("actor_id", string(actorID)),
		zap.String("completed_by", string(by)),
		zap.Int("bookings", len(completed)),
	)
	if by == CompletedByDriver {
		driverName := s.name(ctx, actorID)
		for i := range completed {
			s.send(ctx, notify.KindRideCompleted, completed[i].UserID, r, &completed[i], driverName)
		}
	}
	return &Completion{Ride: r, CompletedBy: by}, nil
}

// Get returns a booking to its passenger or to the ride's driver.
func (s *Service) Get(ctx context.Context, bookingID, actorID types.ID) (*Booking, error) {
	b, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID == actorID {
		return b, nil
	}
	r, err := s.rides.Get(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	if r.CreatedBy != actorID {
		return nil, ErrNotVisible
	}
	return b, nil
}

// ListByRide lists every booking on a ride for its driver.
func (s *Service) ListByRide(ctx context.Context, rideID, driverID types.ID) ([]Passenger, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.CreatedBy != driverID {
		return nil, ErrNotRideDriver
	}
	return s.repo.ListByRide(ctx, rideID)
}

// MyRides returns the caller's published rides with their bookings, and the
// caller's own bookings with ride and driver details.
func (s *Service) MyRides(ctx context.Context, userID types.ID) (*MyRides, error) {
	rides, err := s.rides.ListByDriver(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(rides))
	for i := range rides {
		ids[i] = rides[i].ID
	}
	byRide, err := s.repo.ListByRides(ctx, ids)
	if err != nil {
		return nil, err
	}
	trips, err := s.repo.ListByPassenger(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &MyRides{AsDriver: make([]DriverRide, 0, len(rides)), AsPassenger: trips}
	for _, r := range rides {
		bookings := byRide[r.ID]
		if bookings == nil {
			bookings = []Passenger{}
		}
		out.AsDriver = append(out.AsDriver, DriverRide{Ride: r, Bookings: bookings})
	}
	if out.AsPassenger == nil {
		out.AsPassenger = []Trip{}
	}
	return out, nil
}

func (s *Service) committed(b *Booking, from Status, actorID types.ID) {
	observability.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	s.log.Info("booking transition",
		zap.String("booking_id", string(b.ID)),
		zap.String("ride_id", string(b.RideID)),
		zap.String("actor_id", string(actorID)),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
	)
}

func (s *Service) observeConflict(err error) {
	if apperr.KindOf(err) != apperr.KindStateConflict && apperr.KindOf(err) != apperr.KindDuplicate {
		return
	}
	var reason string
	switch {
	case errors.Is(err, ErrNoSeats):
		reason = "no_seats"
	case errors.Is(err, ErrDuplicate):
		reason = "duplicate"
	case errors.Is(err, ErrDeparted):
		reason = "departed"
	case errors.Is(err, ErrRideClosed), errors.Is(err, ErrRideCompleted):
		reason = "ride_closed"
	default:
		reason = "invalid_transition"
	}
	observability.BookingConflicts.WithLabelValues(reason).Inc()
}

// name resolves a display name for notifications; failures only cost the name.
func (s *Service) name(ctx context.Context, id types.ID) string {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		s.log.Warn("resolve user name", zap.String("user_id", string(id)), zap.Error(err))
		return ""
	}
	return u.Name
}

func (s *Service) send(ctx context.Context, kind notify.Kind, to types.ID, r *ride.Ride, b *Booking, actorName string) {
	if s.notify == nil {
		return
	}
	s.notify.Notify(ctx, notify.Notification{
		Kind:        kind,
		RecipientID: to,
		Data: map[string]string{
			notify.KeyRideID:    string(r.ID),
			notify.KeyBookingID: string(b.ID),
			notify.KeyPickup:    r.Pickup.Address,
			notify.KeyDropoff:   r.Dropoff.Address,
			notify.KeyDeparture: r.DepartureTime.Format(time.RFC1123),
			notify.KeyActorName: actorName,
		},
		CreatedAt: s.now().UTC(),
	})
}
