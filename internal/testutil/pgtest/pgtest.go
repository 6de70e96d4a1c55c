// README: PostgreSQL harness for store tests. Uses CARPOOL_TEST_DSN when set,
// a throwaway container when CARPOOL_TEST_CONTAINERS=1, and skips otherwise.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"carpool/internal/infra"
	"carpool/internal/types"
)

var (
	setupOnce sync.Once
	sharedDSN string
	setupErr  error
)

// New returns a pool on a migrated database. Tests share the database, so
// fixtures must use fresh ids.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("CARPOOL_TEST_DSN")
	if dsn == "" && os.Getenv("CARPOOL_TEST_CONTAINERS") != "1" {
		t.Skip("CARPOOL_TEST_DSN not set and CARPOOL_TEST_CONTAINERS != 1; skipping database test")
	}

	setupOnce.Do(func() {
		if dsn == "" {
			dsn, setupErr = startContainer()
			if setupErr != nil {
				return
			}
		}
		sharedDSN = dsn
		setupErr = migrateUp(dsn)
	})
	require.NoError(t, setupErr, "prepare test database")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := infra.NewDB(ctx, sharedDSN, 20)
	require.NoError(t, err, "connect test database")
	t.Cleanup(pool.Close)
	return pool
}

func startContainer() (string, error) {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("carpool_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return "", err
	}
	return container.ConnectionString(ctx, "sslmode=disable")
}

func migrateUp(dsn string) error {
	m, err := infra.NewMigrator(dsn, migrationsPath(), zap.NewNop())
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// migrationsPath locates the repository's migrations directory from this file.
func migrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// InsertUser creates a user in the given mode ("passenger" or "driver").
func InsertUser(t *testing.T, db *pgxpool.Pool, mode string) types.ID {
	t.Helper()
	id := types.NewID()
	_, err := db.Exec(context.Background(), `
        INSERT INTO users (id, email, name, mode)
        VALUES ($1, $2, $3, $4)`,
		string(id), string(id)+"@test.local", "user "+string(id)[:8], mode,
	)
	require.NoError(t, err, "insert user")
	return id
}

// InsertRide creates an upcoming ride departing tomorrow.
func InsertRide(t *testing.T, db *pgxpool.Pool, driverID types.ID, seats int) types.ID {
	t.Helper()
	id := types.NewID()
	dep := time.Now().Add(24 * time.Hour).UTC()
	_, err := db.Exec(context.Background(), `
        INSERT INTO rides (
            id, created_by, pickup_address, pickup_lat, pickup_lng,
            dropoff_address, dropoff_lat, dropoff_lng,
            departure_time, arrival_time, price, capacity, seats_available
        ) VALUES ($1, $2, 'Taipei', 25.03, 121.56, 'Hsinchu', 24.80, 120.97, $3, $4, $5::numeric, $6, $6)`,
		string(id), string(driverID), dep, dep.Add(90*time.Minute), decimal.NewFromInt(150).String(), seats,
	)
	require.NoError(t, err, "insert ride")
	return id
}
