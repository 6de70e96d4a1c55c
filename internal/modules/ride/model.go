// README: Ride aggregate, lifecycle status, and search query definitions.
package ride

import (
	"time"

	"github.com/shopspring/decimal"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

const MaxSeats = 8

type Ride struct {
	ID             types.ID        `json:"id"`
	CreatedBy      types.ID        `json:"createdBy"`
	Pickup         types.Location  `json:"pickupLocation"`
	Dropoff        types.Location  `json:"dropoffLocation"`
	DepartureTime  time.Time       `json:"departureTime"`
	ArrivalTime    time.Time       `json:"arrivalTime"`
	Price          decimal.Decimal `json:"price"`
	Capacity       int             `json:"capacity"`
	SeatsAvailable int             `json:"seatsAvailable"`
	DistanceKm     float64         `json:"distance"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Listing is a ride as other users see it, with its driver's public profile.
type Listing struct {
	Ride
	Driver identity.PublicProfile `json:"driver"`
}

var (
	ErrNotFound    = apperr.NotFound("Ride not found")
	ErrNotOwner    = apperr.Forbidden("Only the ride's driver can perform this action")
	ErrHasBookings = apperr.StateConflict("Cannot delete a ride that has bookings")
)

type SortKey string

const (
	SortDepartureTime SortKey = "departureTime"
	SortPrice         SortKey = "price"
	SortDistance      SortKey = "distance"
)

// column returns the SQL column for a whitelisted sort key.
func (k SortKey) column() string {
	switch k {
	case SortPrice:
		return "r.price"
	case SortDistance:
		return "r.distance_km"
	default:
		return "r.departure_time"
	}
}

// Filter holds the optional search criteria. Zero values mean "no filter".
type Filter struct {
	Pickup   string           `json:"pickup,omitempty"`
	Dropoff  string           `json:"dropoff,omitempty"`
	Date     *time.Time       `json:"date,omitempty"`
	MaxPrice *decimal.Decimal `json:"maxPrice,omitempty"`
	MinSeats int              `json:"minSeats,omitempty"`
}

// Query is a normalised search request.
type Query struct {
	Filter
	SortBy SortKey
	Desc   bool
	Page   int
	Limit  int
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

type Page struct {
	Rides      []Listing `json:"rides"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}
