// README: Bench cases: infra reachability, schema presence, seat contention over HTTP, and listing throughput.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	api   *apiClient
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg: cfg,
		api: &apiClient{base: cfg.BaseURL, httpc: &http.Client{Timeout: 10 * time.Second}},
	}
}

func pass(note string, args ...any) Result {
	return Result{Status: statusPass, Note: fmt.Sprintf(note, args...)}
}

func fail(err error) Result {
	return Result{Status: statusFail, Note: err.Error()}
}

func failf(note string, args ...any) Result {
	return Result{Status: statusFail, Note: fmt.Sprintf(note, args...)}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer func() { _ = r.redis.Close() }()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: pingDB},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: health},
		{Name: "Booking: concurrent confirms never oversell", Run: confirmContention},
		{Name: "Booking: concurrent duplicate requests", Run: duplicateRequests},
		{Name: "Perf: GET /rides throughput", Run: listingThroughput},
	}
}

func pingDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return fail(err)
	}
	return pass("")
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fail(err)
	}
	return pass("")
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return fail(err)
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return fail(err)
		}
		if !exists {
			return failf("missing table: %s", t)
		}
	}
	return pass("%d tables", len(tables))
}

func health(ctx context.Context, r *Runner) Result {
	code, err := r.api.do(ctx, http.MethodGet, "/health", "", nil, nil)
	if err := expect(code, err, http.StatusOK, "health"); err != nil {
		return fail(err)
	}
	return pass("")
}

// confirmContention books one ride with more passengers than seats and has
// the driver confirm every request at once.
func confirmContention(ctx context.Context, r *Runner) Result {
	driver, err := r.api.driver(ctx)
	if err != nil {
		return fail(err)
	}
	rideID, err := r.api.offer(ctx, driver, r.cfg.Seats)
	if err != nil {
		return fail(err)
	}

	bookingIDs := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		p, err := r.api.register(ctx, fmt.Sprintf("Bench Passenger %d", i))
		if err != nil {
			return fail(err)
		}
		id, code, err := r.api.book(ctx, p, rideID)
		if err := expect(code, err, http.StatusOK, "book"); err != nil {
			return fail(err)
		}
		bookingIDs = append(bookingIDs, id)
	}

	start := make(chan struct{})
	var confirmed, conflicted atomic.Int64
	var wg sync.WaitGroup
	for _, id := range bookingIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			code, err := r.api.do(ctx, http.MethodPost, "/rides/bookings/"+id+"/confirm", driver.Token, nil, nil)
			switch {
			case err != nil:
			case code == http.StatusOK:
				confirmed.Add(1)
			case code == http.StatusBadRequest:
				conflicted.Add(1)
			}
		}(id)
	}
	began := time.Now()
	close(start)
	wg.Wait()
	elapsed := time.Since(began)

	left, err := r.api.seatsLeft(ctx, rideID)
	if err != nil {
		return fail(err)
	}
	want := min(r.cfg.Seats, len(bookingIDs))
	if int(confirmed.Load()) != want || left != r.cfg.Seats-want {
		return failf("confirmed=%d seatsLeft=%d, want confirmed=%d seatsLeft=%d", confirmed.Load(), left, want, r.cfg.Seats-want)
	}
	return Result{Status: statusPass, Latency: elapsed, Note: fmt.Sprintf("confirmed=%d rejected=%d", confirmed.Load(), conflicted.Load())}
}

func duplicateRequests(ctx context.Context, r *Runner) Result {
	driver, err := r.api.driver(ctx)
	if err != nil {
		return fail(err)
	}
	rideID, err := r.api.offer(ctx, driver, r.cfg.Seats)
	if err != nil {
		return fail(err)
	}
	p, err := r.api.register(ctx, "Bench Duplicate")
	if err != nil {
		return fail(err)
	}

	start := make(chan struct{})
	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, code, err := r.api.book(ctx, p, rideID); err == nil && code == http.StatusOK {
				created.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if created.Load() != 1 {
		return failf("created=%d, want 1", created.Load())
	}
	return pass("created=1 of %d", r.cfg.Concurrency)
}

func listingThroughput(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, err := r.api.do(ctx, http.MethodGet, "/rides?sortBy=price&limit=20", "", nil, nil)
				if err != nil || code != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return failf("no requests completed (errors=%d)", errCount.Load())
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return pass("rps=%.1f errors=%d", rps, errCount.Load())
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
