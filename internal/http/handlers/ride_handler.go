// README: Ride inventory handlers (offer, search, detail, withdraw).
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Get(ctx context.Context, id types.ID) (*ride.Listing, error)
	SearchParams(ctx context.Context, p ride.SearchParams) (*ride.Page, error)
	Delete(ctx context.Context, id, actorID types.ID) error
}

type RideHandler struct {
	base
	rides RideService
}

func NewRideHandler(rides RideService, opts Options) *RideHandler {
	return &RideHandler{base: newBase(opts), rides: rides}
}

type createRideReq struct {
	Pickup         *types.Location  `json:"pickupLocation" binding:"required"`
	Dropoff        *types.Location  `json:"dropoffLocation" binding:"required"`
	DepartureTime  time.Time        `json:"departureTime" binding:"required"`
	ArrivalTime    time.Time        `json:"arrivalTime" binding:"required"`
	Price          *decimal.Decimal `json:"price" binding:"required"`
	SeatsAvailable int              `json:"seatsAvailable" binding:"required"`
	Distance       float64          `json:"distance"`
}

// Create handles POST /rides.
func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Missing required ride fields")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		DriverID:       caller(c),
		Pickup:         *req.Pickup,
		Dropoff:        *req.Dropoff,
		DepartureTime:  req.DepartureTime,
		ArrivalTime:    req.ArrivalTime,
		Price:          *req.Price,
		SeatsAvailable: req.SeatsAvailable,
		DistanceKm:     req.Distance,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// List handles GET /rides. Filters arrive as query parameters.
func (h *RideHandler) List(c *gin.Context) {
	var p ride.SearchParams
	if err := c.ShouldBindQuery(&p); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid search parameters")
		return
	}
	page, err := h.rides.SearchParams(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, page)
}

// Get handles GET /rides/:rideId.
func (h *RideHandler) Get(c *gin.Context) {
	l, err := h.rides.Get(c.Request.Context(), param(c, "rideId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, l)
}

// Delete handles DELETE /rides/:rideId.
func (h *RideHandler) Delete(c *gin.Context) {
	if err := h.rides.Delete(c.Request.Context(), param(c, "rideId"), caller(c)); err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "Ride deleted"})
}
