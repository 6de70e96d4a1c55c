// README: Notification job definitions carried on the outbox queue.
package notify

import (
	"time"

	"carpool/internal/types"
)

type Kind string

const (
	KindBookingRequested Kind = "booking_requested"
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingRejected  Kind = "booking_rejected"
	KindRideCompleted    Kind = "ride_completed"
	KindReviewReceived   Kind = "review_received"
)

// Data keys understood by the templates.
const (
	KeyRideID    = "rideId"
	KeyBookingID = "bookingId"
	KeyPickup    = "pickup"
	KeyDropoff   = "dropoff"
	KeyDeparture = "departure"
	KeyActorName = "actorName"
	KeyRating    = "rating"
	KeyComment   = "comment"
)

type Notification struct {
	Kind        Kind              `json:"kind"`
	RecipientID types.ID          `json:"recipientId"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
