// README: Review submission and per-user review listing.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/review"
	"carpool/internal/types"
)

type ReviewService interface {
	Submit(ctx context.Context, cmd review.SubmitCommand) (*review.Review, error)
	ListForUser(ctx context.Context, userID types.ID) ([]review.View, error)
}

type ReviewHandler struct {
	base
	reviews ReviewService
}

func NewReviewHandler(reviews ReviewService, opts Options) *ReviewHandler {
	return &ReviewHandler{base: newBase(opts), reviews: reviews}
}

type submitReviewReq struct {
	RideID  types.ID `json:"rideId" binding:"required"`
	Rating  int      `json:"rating" binding:"required"`
	Comment string   `json:"comment"`
}

// Submit handles POST /reviews.
func (h *ReviewHandler) Submit(c *gin.Context) {
	var req submitReviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Ride id and rating are required")
		return
	}
	rv, err := h.reviews.Submit(c.Request.Context(), review.SubmitCommand{
		RideID:     req.RideID,
		ReviewerID: caller(c),
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rv)
}

// ListForUser handles GET /reviews/user/:userId.
func (h *ReviewHandler) ListForUser(c *gin.Context) {
	list, err := h.reviews.ListForUser(c.Request.Context(), param(c, "userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []review.View{}
	}
	writeJSON(c, http.StatusOK, list)
}
