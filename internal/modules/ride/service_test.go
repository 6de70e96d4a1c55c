package ride

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

type memRepo struct {
	mu       sync.Mutex
	rides    map[types.ID]*Ride
	bookings map[types.ID]int
	lastQ    Query
}

func newMemRepo() *memRepo {
	return &memRepo{rides: map[types.ID]*Ride{}, bookings: map[types.ID]int{}}
}

func (m *memRepo) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetListing(ctx context.Context, id types.ID) (*Listing, error) {
	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Listing{Ride: *r, Driver: identity.PublicProfile{ID: r.CreatedBy}}, nil
}

func (m *memRepo) Search(_ context.Context, q Query) ([]Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ = q
	var all []Listing
	for _, r := range m.rides {
		if r.SeatsAvailable > 0 && r.ArrivalTime.After(time.Now()) {
			all = append(all, Listing{Ride: *r})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DepartureTime.Before(all[j].DepartureTime) })
	total := len(all)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memRepo) ListByDriver(_ context.Context, driverID types.ID) ([]Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Ride
	for _, r := range m.rides {
		if r.CreatedBy == driverID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id types.ID, guard func(*Ride, int) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	if err := guard(r, m.bookings[id]); err != nil {
		return err
	}
	delete(m.rides, id)
	return nil
}

type memUsers map[types.ID]*identity.User

func (u memUsers) Get(_ context.Context, id types.ID) (*identity.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, identity.ErrNotFound
}

type fixedDistance struct {
	km  float64
	err error
}

func (f fixedDistance) DistanceKm(context.Context, types.Point, types.Point) (float64, error) {
	return f.km, f.err
}

// geoDistance also geocodes, like the Maps-backed estimator.
type geoDistance struct {
	fixedDistance
	points map[string]types.Point
}

func (g geoDistance) Locate(_ context.Context, address string) (types.Point, error) {
	p, ok := g.points[address]
	if !ok {
		return types.Point{}, errors.New("unknown address")
	}
	return p, nil
}

const (
	driverID    types.ID = "driver-1"
	passengerID types.ID = "passenger-1"
)

func testUsers() memUsers {
	return memUsers{
		driverID:    {ID: driverID, Mode: identity.ModeDriver},
		passengerID: {ID: passengerID, Mode: identity.ModePassenger},
	}
}

func validCommand() CreateCommand {
	dep := time.Now().Add(24 * time.Hour)
	return CreateCommand{
		DriverID:       driverID,
		Pickup:         types.Location{Address: "Taipei 101", Lat: 25.0340, Lng: 121.5645},
		Dropoff:        types.Location{Address: "Taipei Main Station", Lat: 25.0478, Lng: 121.5170},
		DepartureTime:  dep,
		ArrivalTime:    dep.Add(time.Hour),
		Price:          decimal.RequireFromString("12.50"),
		SeatsAvailable: 3,
		DistanceKm:     6.2,
	}
}

func TestCreate(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, testUsers(), nil, 100, zap.NewNop())

	r, err := svc.Create(context.Background(), validCommand())
	require.NoError(t, err)
	assert.Equal(t, StatusUpcoming, r.Status)
	assert.Equal(t, 3, r.Capacity)
	assert.Equal(t, 3, r.SeatsAvailable)
	assert.Equal(t, 6.2, r.DistanceKm)
	assert.True(t, r.Price.Equal(decimal.RequireFromString("12.5")))

	stored, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, driverID, stored.CreatedBy)
}

func TestCreateRequiresDriverMode(t *testing.T) {
	svc := NewService(newMemRepo(), testUsers(), nil, 100, zap.NewNop())
	cmd := validCommand()
	cmd.DriverID = passengerID

	_, err := svc.Create(context.Background(), cmd)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemRepo(), testUsers(), nil, 100, zap.NewNop())

	tests := map[string]func(*CreateCommand){
		"missing pickup":        func(c *CreateCommand) { c.Pickup.Address = "" },
		"missing dropoff":       func(c *CreateCommand) { c.Dropoff.Address = " " },
		"arrival before depart": func(c *CreateCommand) { c.ArrivalTime = c.DepartureTime.Add(-time.Minute) },
		"equal times":           func(c *CreateCommand) { c.ArrivalTime = c.DepartureTime },
		"missing times":         func(c *CreateCommand) { c.DepartureTime = time.Time{} },
		"negative price":        func(c *CreateCommand) { c.Price = decimal.NewFromInt(-1) },
		"zero seats":            func(c *CreateCommand) { c.SeatsAvailable = 0 },
		"too many seats":        func(c *CreateCommand) { c.SeatsAvailable = MaxSeats + 1 },
		"negative distance":     func(c *CreateCommand) { c.DistanceKm = -3 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := validCommand()
			mutate(&cmd)
			_, err := svc.Create(context.Background(), cmd)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestCreateEstimatesMissingDistance(t *testing.T) {
	cmd := validCommand()
	cmd.DistanceKm = 0

	svc := NewService(newMemRepo(), testUsers(), fixedDistance{km: 7.456}, 100, zap.NewNop())
	r, err := svc.Create(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 7.46, r.DistanceKm)

	svc = NewService(newMemRepo(), testUsers(), fixedDistance{err: errors.New("quota")}, 100, zap.NewNop())
	r, err = svc.Create(context.Background(), cmd)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, r.DistanceKm, 1.0, "falls back to great-circle distance")

	svc = NewService(newMemRepo(), testUsers(), nil, 100, zap.NewNop())
	r, err = svc.Create(context.Background(), cmd)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, r.DistanceKm, 1.0)
}

func TestSearchPaging(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, testUsers(), nil, 5, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.Create(ctx, validCommand())
		require.NoError(t, err)
	}
	full := validCommand()
	r, err := svc.Create(ctx, full)
	require.NoError(t, err)
	repo.rides[r.ID].SeatsAvailable = 0

	page, err := svc.Search(ctx, Query{SortBy: SortDepartureTime, Page: 2, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 5, repo.lastQ.Limit, "limit clamped to max")
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Rides, 2)
}

func TestSearchHugePageDoesNotOverflowOffset(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, testUsers(), nil, 10, zap.NewNop())

	page, err := svc.Search(context.Background(), Query{SortBy: SortDepartureTime, Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, repo.lastQ.Offset(), 0)
	assert.Equal(t, math.MaxInt32/10, page.Page)
	assert.Empty(t, page.Rides)
}

func TestDelete(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, testUsers(), nil, 100, zap.NewNop())
	ctx := context.Background()

	r, err := svc.Create(ctx, validCommand())
	require.NoError(t, err)

	err = svc.Delete(ctx, r.ID, passengerID)
	assert.ErrorIs(t, err, ErrNotOwner)

	repo.bookings[r.ID] = 1
	err = svc.Delete(ctx, r.ID, driverID)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))

	repo.bookings[r.ID] = 0
	require.NoError(t, svc.Delete(ctx, r.ID, driverID))

	_, err = svc.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGeocodesMissingCoordinates(t *testing.T) {
	geo := geoDistance{
		fixedDistance: fixedDistance{km: 12},
		points:        map[string]types.Point{"Songshan Airport": {Lat: 25.0694, Lng: 121.5525}},
	}
	svc := NewService(newMemRepo(), testUsers(), geo, 100, zap.NewNop())

	cmd := validCommand()
	cmd.Pickup = types.Location{Address: "Songshan Airport"}
	cmd.Dropoff = types.Location{Address: "Nowhere"}
	cmd.DistanceKm = 0
	r, err := svc.Create(context.Background(), cmd)

	require.NoError(t, err)
	assert.Equal(t, 25.0694, r.Pickup.Lat)
	assert.Equal(t, 121.5525, r.Pickup.Lng)
	assert.Zero(t, r.Dropoff.Lat, "failed lookups keep the submitted location")
	assert.Equal(t, 12.0, r.DistanceKm)
}
