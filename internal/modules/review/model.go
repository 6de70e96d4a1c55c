// README: Review entity and the reviewee rating aggregate.
package review

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

const (
	MinRating     = 1
	MaxRating     = 5
	MaxCommentLen = 500

	// RoleDriver marks a review a passenger left for a ride's driver.
	RoleDriver = "driver"
)

type Review struct {
	ID         types.ID  `json:"id"`
	RideID     types.ID  `json:"rideId"`
	ReviewerID types.ID  `json:"reviewerId"`
	RevieweeID types.ID  `json:"revieweeId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Aggregate is a user's running rating as a sum and count.
type Aggregate struct {
	Sum   int64
	Count int64
}

func (a Aggregate) Add(rating int) Aggregate {
	return Aggregate{Sum: a.Sum + int64(rating), Count: a.Count + 1}
}

func (a Aggregate) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.Count)
}

type RideSummary struct {
	ID            types.ID       `json:"id"`
	Pickup        types.Location `json:"pickupLocation"`
	Dropoff       types.Location `json:"dropoffLocation"`
	DepartureTime time.Time      `json:"departureTime"`
}

// View is a review as listed on a user's profile.
type View struct {
	Review
	Reviewer identity.PublicProfile `json:"reviewer"`
	Ride     RideSummary            `json:"ride"`
}

var (
	ErrDuplicate    = apperr.Duplicate("You have already reviewed this ride")
	ErrOwnRide      = apperr.Forbidden("You cannot review your own ride")
	ErrNotCompleted = apperr.StateConflict("You can only review rides you have completed")
)
