package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carpool/internal/apperr"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type bookingKey struct{ ride, user types.ID }

type memRepo struct {
	mu       sync.Mutex
	rides    map[types.ID]ride.Ride
	bookings map[bookingKey]booking.Status
	reviewed map[bookingKey]bool
	reviews  []Review
	aggs     map[types.ID]Aggregate
	users    map[types.ID]*identity.User
}

func newMemRepo() *memRepo {
	return &memRepo{
		rides:    map[types.ID]ride.Ride{},
		bookings: map[bookingKey]booking.Status{},
		reviewed: map[bookingKey]bool{},
		aggs:     map[types.ID]Aggregate{},
		users:    map[types.ID]*identity.User{},
	}
}

func (m *memRepo) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reviews := len(m.reviews)
	aggs := make(map[types.ID]Aggregate, len(m.aggs))
	for k, v := range m.aggs {
		aggs[k] = v
	}
	if err := fn(memTx{m}); err != nil {
		m.reviews, m.aggs = m.reviews[:reviews], aggs
		return err
	}
	return nil
}

func (m *memRepo) ListForUser(_ context.Context, userID types.ID) ([]View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []View
	for i := len(m.reviews) - 1; i >= 0; i-- {
		r := m.reviews[i]
		if r.RevieweeID == userID {
			out = append(out, View{Review: r, Reviewer: m.users[r.ReviewerID].Public()})
		}
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

type memTx struct{ m *memRepo }

func (t memTx) GetRide(_ context.Context, id types.ID) (*ride.Ride, error) {
	r, ok := t.m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return &r, nil
}

func (t memTx) Exists(_ context.Context, rideID, reviewerID types.ID) (bool, error) {
	for _, r := range t.m.reviews {
		if r.RideID == rideID && r.ReviewerID == reviewerID {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) BookingStatus(_ context.Context, rideID, userID types.ID) (booking.Status, error) {
	s, ok := t.m.bookings[bookingKey{rideID, userID}]
	if !ok {
		return "", booking.ErrNotFound
	}
	return s, nil
}

func (t memTx) LockAggregate(_ context.Context, userID types.ID) (Aggregate, error) {
	return t.m.aggs[userID], nil
}

func (t memTx) Insert(_ context.Context, r *Review) error {
	t.m.reviews = append(t.m.reviews, *r)
	return nil
}

func (t memTx) SetAggregate(_ context.Context, userID types.ID, a Aggregate) error {
	t.m.aggs[userID] = a
	return nil
}

func (t memTx) MarkReviewed(_ context.Context, rideID, userID types.ID) error {
	t.m.reviewed[bookingKey{rideID, userID}] = true
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

const driverID types.ID = "driver"

func setup(t *testing.T) (*Service, *memRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemRepo()
	repo.users[driverID] = &identity.User{ID: driverID, Name: "Dana", Mode: identity.ModeDriver}
	n := &recordingNotifier{}
	return NewService(repo, repo, n, zap.NewNop()), repo, n
}

func (m *memRepo) addRide() types.ID {
	id := types.NewID()
	m.rides[id] = ride.Ride{ID: id, CreatedBy: driverID, Status: ride.StatusCompleted, DepartureTime: time.Now()}
	return id
}

func (m *memRepo) addPassenger(rideID types.ID, name string, status booking.Status) types.ID {
	id := types.ID("passenger-" + name)
	m.users[id] = &identity.User{ID: id, Name: name, Mode: identity.ModePassenger}
	m.bookings[bookingKey{rideID, id}] = status
	return id
}

func TestSubmitUpdatesRatingAndRejectsDuplicate(t *testing.T) {
	svc, repo, n := setup(t)
	ctx := context.Background()
	rideID := repo.addRide()
	a := repo.addPassenger(rideID, "a", booking.StatusCompleted)

	rv, err := svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: a, Rating: 4, Comment: " smooth ride "})
	require.NoError(t, err)
	assert.Equal(t, driverID, rv.RevieweeID)
	assert.Equal(t, RoleDriver, rv.Role)
	assert.Equal(t, "smooth ride", rv.Comment)
	assert.Equal(t, 4.0, repo.aggs[driverID].Mean())
	assert.True(t, repo.reviewed[bookingKey{rideID, a}])

	_, err = svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: a, Rating: 1})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, apperr.KindDuplicate, apperr.KindOf(err))
	assert.Equal(t, Aggregate{Sum: 4, Count: 1}, repo.aggs[driverID])

	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.KindReviewReceived, n.sent[0].Kind)
	assert.Equal(t, driverID, n.sent[0].RecipientID)
	assert.Equal(t, "4", n.sent[0].Data[notify.KeyRating])
	assert.Equal(t, "a", n.sent[0].Data[notify.KeyActorName])
}

func TestRatingIsMeanOfAllReviews(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	ratings := []int{5, 3, 4, 1, 2, 5}

	sum := 0
	for i, r := range ratings {
		rideID := repo.addRide()
		p := repo.addPassenger(rideID, fmt.Sprint(i), booking.StatusCompleted)
		_, err := svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: p, Rating: r})
		require.NoError(t, err)
		sum += r
	}
	assert.InDelta(t, float64(sum)/float64(len(ratings)), repo.aggs[driverID].Mean(), 1e-9)
}

func TestConcurrentSubmissionsDoNotLoseUpdates(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	rideID := repo.addRide()

	const reviewers = 20
	var ids []types.ID
	for i := 0; i < reviewers; i++ {
		ids = append(ids, repo.addPassenger(rideID, fmt.Sprint(i), booking.StatusCompleted))
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(id types.ID, rating int) {
			defer wg.Done()
			<-start
			_, err := svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: id, Rating: rating})
			assert.NoError(t, err)
		}(id, i%5+1)
	}
	close(start)
	wg.Wait()

	agg := repo.aggs[driverID]
	assert.Equal(t, int64(reviewers), agg.Count)
	assert.Equal(t, int64(60), agg.Sum)
	assert.Equal(t, 3.0, agg.Mean())
}

func TestSubmitPreconditions(t *testing.T) {
	svc, repo, n := setup(t)
	ctx := context.Background()
	rideID := repo.addRide()
	confirmed := repo.addPassenger(rideID, "c", booking.StatusConfirmed)
	stranger := types.ID("stranger")

	_, err := svc.Submit(ctx, SubmitCommand{RideID: "missing", ReviewerID: confirmed, Rating: 3})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: driverID, Rating: 3})
	assert.ErrorIs(t, err, ErrOwnRide)

	_, err = svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: confirmed, Rating: 3})
	assert.ErrorIs(t, err, ErrNotCompleted)

	_, err = svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: stranger, Rating: 3})
	assert.ErrorIs(t, err, ErrNotCompleted)

	assert.Empty(t, n.sent)
	assert.Equal(t, Aggregate{}, repo.aggs[driverID])
}

func TestSubmitValidation(t *testing.T) {
	svc, repo, _ := setup(t)
	rideID := repo.addRide()
	long := make([]rune, MaxCommentLen+1)
	for i := range long {
		long[i] = 'é'
	}

	for _, cmd := range []SubmitCommand{
		{RideID: rideID, Rating: 0},
		{RideID: rideID, Rating: 6},
		{RideID: "", Rating: 3},
		{RideID: rideID, Rating: 3, Comment: string(long)},
	} {
		_, err := svc.Submit(context.Background(), cmd)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "%+v", cmd.Rating)
	}

	ok := make([]rune, MaxCommentLen)
	for i := range ok {
		ok[i] = 'é'
	}
	p := repo.addPassenger(rideID, "a", booking.StatusCompleted)
	_, err := svc.Submit(context.Background(), SubmitCommand{RideID: rideID, ReviewerID: p, Rating: 3, Comment: string(ok)})
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestListForUserNewestFirst(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	for i, r := range []int{2, 5} {
		rideID := repo.addRide()
		p := repo.addPassenger(rideID, fmt.Sprint(i), booking.StatusCompleted)
		_, err := svc.Submit(ctx, SubmitCommand{RideID: rideID, ReviewerID: p, Rating: r})
		require.NoError(t, err)
	}

	list, err := svc.ListForUser(ctx, driverID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 5, list[0].Rating)
	assert.Equal(t, "1", list[0].Reviewer.Name)

	_, err = svc.ListForUser(ctx, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
