// README: Review ledger: one review per ride and reviewer, with the driver's
// rating kept as a transactional sum and count.
package review

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"carpool/internal/apperr"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/observability"
	"carpool/internal/types"
)

type Tx interface {
	GetRide(ctx context.Context, rideID types.ID) (*ride.Ride, error)
	Exists(ctx context.Context, rideID, reviewerID types.ID) (bool, error)
	BookingStatus(ctx context.Context, rideID, userID types.ID) (booking.Status, error)
	// LockAggregate locks the reviewee's row and returns its rating totals.
	LockAggregate(ctx context.Context, userID types.ID) (Aggregate, error)
	Insert(ctx context.Context, r *Review) error
	SetAggregate(ctx context.Context, userID types.ID, a Aggregate) error
	MarkReviewed(ctx context.Context, rideID, userID types.ID) error
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListForUser(ctx context.Context, userID types.ID) ([]View, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*identity.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

type Service struct {
	repo   Repository
	users  Users
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, users Users, notifier Notifier, log *zap.Logger) *Service {
	return &Service{repo: repo, users: users, notify: notifier, log: log.Named("review"), now: time.Now}
}

type SubmitCommand struct {
	RideID     types.ID
	ReviewerID types.ID
	Rating     int
	Comment    string
}

func (c SubmitCommand) validate() error {
	if c.RideID == "" {
		return apperr.Validation("rideId is required")
	}
	if c.Rating < MinRating || c.Rating > MaxRating {
		return apperr.Validation("Rating must be between %d and %d", MinRating, MaxRating)
	}
	if utf8.RuneCountInString(c.Comment) > MaxCommentLen {
		return apperr.Validation("Comment must be at most %d characters", MaxCommentLen)
	}
	return nil
}

// Submit records a passenger's review of the ride's driver and folds the
// rating into the driver's aggregate in the same transaction.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Review, error) {
	cmd.Comment = strings.TrimSpace(cmd.Comment)
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	var rv *Review
	var agg Aggregate
	var r *ride.Ride
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		r, err = tx.GetRide(ctx, cmd.RideID)
		if err != nil {
			return err
		}
		if r.CreatedBy == cmd.ReviewerID {
			return ErrOwnRide
		}
		exists, err := tx.Exists(ctx, cmd.RideID, cmd.ReviewerID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}
		status, err := tx.BookingStatus(ctx, cmd.RideID, cmd.ReviewerID)
		if errors.Is(err, booking.ErrNotFound) || (err == nil && status != booking.StatusCompleted) {
			return ErrNotCompleted
		}
		if err != nil {
			return err
		}

		agg, err = tx.LockAggregate(ctx, r.CreatedBy)
		if err != nil {
			return err
		}
		rv = &Review{
			ID:         types.NewID(),
			RideID:     cmd.RideID,
			ReviewerID: cmd.ReviewerID,
			RevieweeID: r.CreatedBy,
			Rating:     cmd.Rating,
			Comment:    cmd.Comment,
			Role:       RoleDriver,
			CreatedAt:  s.now().UTC(),
		}
		if err := tx.Insert(ctx, rv); err != nil {
			return err
		}
		agg = agg.Add(cmd.Rating)
		if err := tx.SetAggregate(ctx, r.CreatedBy, agg); err != nil {
			return err
		}
		return tx.MarkReviewed(ctx, cmd.RideID, cmd.ReviewerID)
	})
	if err != nil {
		return nil, err
	}

	observability.ReviewsTotal.Inc()
	s.log.Info("review recorded",
		zap.String("ride_id", string(rv.RideID)),
		zap.String("actor_id", string(rv.ReviewerID)),
		zap.String("reviewee_id", string(rv.RevieweeID)),
		zap.Int("rating", rv.Rating),
		zap.Float64("new_rating", agg.Mean()),
	)
	s.sendReceived(ctx, rv, r)
	return rv, nil
}

func (s *Service) ListForUser(ctx context.Context, userID types.ID) ([]View, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) sendReceived(ctx context.Context, rv *Review, r *ride.Ride) {
	if s.notify == nil {
		return
	}
	var reviewer string
	if u, err := s.users.Get(ctx, rv.ReviewerID); err == nil {
		reviewer = u.Name
	}
	s.notify.Notify(ctx, notify.Notification{
		Kind:        notify.KindReviewReceived,
		RecipientID: rv.RevieweeID,
		Data: map[string]string{
			notify.KeyRideID:    string(r.ID),
			notify.KeyPickup:    r.Pickup.Address,
			notify.KeyDropoff:   r.Dropoff.Address,
			notify.KeyDeparture: r.DepartureTime.Format(time.RFC1123),
			notify.KeyActorName: reviewer,
			notify.KeyRating:    strconv.Itoa(rv.Rating),
			notify.KeyComment:   rv.Comment,
		},
		CreatedAt: s.now().UTC(),
	})
}
