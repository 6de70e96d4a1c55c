// README: Booking lifecycle handlers; every transition is a POST on the booking or ride.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/booking"
	"carpool/internal/types"
)

type BookingService interface {
	Request(ctx context.Context, rideID, passengerID types.ID) (*booking.Booking, error)
	Confirm(ctx context.Context, bookingID, driverID types.ID) (*booking.Booking, error)
	Reject(ctx context.Context, bookingID, driverID types.ID) (*booking.Booking, error)
	Complete(ctx context.Context, rideID, actorID types.ID) (*booking.Completion, error)
	Get(ctx context.Context, bookingID, actorID types.ID) (*booking.Booking, error)
	ListByRide(ctx context.Context, rideID, driverID types.ID) ([]booking.Passenger, error)
	MyRides(ctx context.Context, userID types.ID) (*booking.MyRides, error)
}

type BookingHandler struct {
	base
	bookings BookingService
}

func NewBookingHandler(bookings BookingService, opts Options) *BookingHandler {
	return &BookingHandler{base: newBase(opts), bookings: bookings}
}

// Book handles POST /rides/:rideId/book.
func (h *BookingHandler) Book(c *gin.Context) {
	b, err := h.bookings.Request(c.Request.Context(), param(c, "rideId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// Confirm handles POST /rides/bookings/:bookingId/confirm.
func (h *BookingHandler) Confirm(c *gin.Context) {
	b, err := h.bookings.Confirm(c.Request.Context(), param(c, "bookingId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// Reject handles POST /rides/bookings/:bookingId/reject.
func (h *BookingHandler) Reject(c *gin.Context) {
	b, err := h.bookings.Reject(c.Request.Context(), param(c, "bookingId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// Complete handles POST /rides/:rideId/complete for the driver or a confirmed passenger.
func (h *BookingHandler) Complete(c *gin.Context) {
	done, err := h.bookings.Complete(c.Request.Context(), param(c, "rideId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, done)
}

// Get handles GET /rides/bookings/:bookingId.
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), param(c, "bookingId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// ListByRide handles GET /rides/:rideId/bookings.
func (h *BookingHandler) ListByRide(c *gin.Context) {
	list, err := h.bookings.ListByRide(c.Request.Context(), param(c, "rideId"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []booking.Passenger{}
	}
	writeJSON(c, http.StatusOK, list)
}

// MyRides handles GET /rides/my-rides.
func (h *BookingHandler) MyRides(c *gin.Context) {
	mine, err := h.bookings.MyRides(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, mine)
}
