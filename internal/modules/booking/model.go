// README: Booking aggregate, status definitions, and the state table.
package booking

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type Status string

const (
	// StatusNone is the from-state recorded for a booking's creation event.
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	// StatusCancelled is a valid stored value that no transition produces yet.
	StatusCancelled Status = "cancelled"
)

type Booking struct {
	ID        types.ID  `json:"id"`
	RideID    types.ID  `json:"rideId"`
	UserID    types.ID  `json:"userId"`
	Status    Status    `json:"status"`
	Reviewed  bool      `json:"reviewed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    types.ID
	CreatedAt  time.Time
}

// AllowedTransitions is the booking state flow as data. Rejected, completed
// and cancelled are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Passenger is a booking on a driver's ride with the passenger's public profile.
type Passenger struct {
	Booking
	Passenger identity.PublicProfile `json:"passenger"`
}

// Trip is one of the caller's bookings with the ride and its driver.
type Trip struct {
	Booking
	Ride ride.Listing `json:"ride"`
}

// DriverRide is a ride the caller published, with the bookings made on it.
type DriverRide struct {
	ride.Ride
	Bookings []Passenger `json:"bookings"`
}

type MyRides struct {
	AsDriver    []DriverRide `json:"asDriver"`
	AsPassenger []Trip       `json:"asPassenger"`
}

type CompletedBy string

const (
	CompletedByDriver    CompletedBy = "driver"
	CompletedByPassenger CompletedBy = "passenger"
)

type Completion struct {
	Ride        *ride.Ride  `json:"ride"`
	CompletedBy CompletedBy `json:"completedBy"`
}

var (
	ErrNotFound       = apperr.NotFound("Booking not found")
	ErrDuplicate      = apperr.Duplicate("You have already requested this ride")
	ErrNoSeats        = apperr.StateConflict("No seats available")
	ErrDeparted       = apperr.StateConflict("Ride has already departed")
	ErrRideClosed     = apperr.StateConflict("Ride is no longer accepting bookings")
	ErrRideCompleted  = apperr.StateConflict("Ride is already completed")
	ErrNotRideDriver  = apperr.Forbidden("Only the ride's driver can perform this action")
	ErrNotParticipant = apperr.Forbidden("Only the ride's driver or a confirmed passenger can complete the ride")
	ErrNotVisible     = apperr.Forbidden("You are not part of this booking")
)

func errInvalidTransition(from, to Status) error {
	return apperr.StateConflict("Cannot move booking from %s to %s", from, to)
}
