// README: Normalisation of raw search parameters into a Query.
package ride

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"carpool/internal/apperr"
)

const (
	DefaultLimit = 10
	dateLayout   = "2006-01-02"
)

// SearchParams are the raw, untrusted search inputs as they arrive on the wire.
type SearchParams struct {
	Pickup    string `form:"pickup"`
	Dropoff   string `form:"dropoff"`
	Date      string `form:"date"`
	MaxPrice  string `form:"maxPrice"`
	MinSeats  string `form:"minSeats"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
	Page      string `form:"page"`
	Limit     string `form:"limit"`
}

// ParseQuery validates filters and clamps paging. Unknown sort keys fall back
// to departure time; a bad page becomes 1; the limit is clamped to [1, maxLimit].
func ParseQuery(p SearchParams, maxLimit int) (Query, error) {
	var q Query
	q.Pickup = strings.TrimSpace(p.Pickup)
	q.Dropoff = strings.TrimSpace(p.Dropoff)

	if s := strings.TrimSpace(p.Date); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return Query{}, apperr.Validation("date must be YYYY-MM-DD")
		}
		q.Date = &d
	}
	if s := strings.TrimSpace(p.MaxPrice); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil || v.IsNegative() {
			return Query{}, apperr.Validation("maxPrice must be a non-negative number")
		}
		q.MaxPrice = &v
	}
	if s := strings.TrimSpace(p.MinSeats); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Query{}, apperr.Validation("minSeats must be a non-negative integer")
		}
		q.MinSeats = n
	}

	switch SortKey(p.SortBy) {
	case SortPrice, SortDistance:
		q.SortBy = SortKey(p.SortBy)
	default:
		q.SortBy = SortDepartureTime
	}
	q.Desc = strings.EqualFold(p.SortOrder, "desc")

	q.Page = 1
	if n, err := strconv.Atoi(p.Page); err == nil && n >= 1 {
		q.Page = n
	}
	q.Limit = DefaultLimit
	if n, err := strconv.Atoi(p.Limit); err == nil {
		q.Limit = n
	}
	q.Limit = clamp(q.Limit, 1, maxLimit)
	q.Page = clampPage(q.Page, q.Limit)
	return q, nil
}

// DefaultQuery wraps a filter with default sort and paging.
func DefaultQuery(f Filter) Query {
	return Query{Filter: f, SortBy: SortDepartureTime, Page: 1, Limit: DefaultLimit}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// clampPage bounds page so the row offset always fits a Postgres OFFSET.
func clampPage(page, limit int) int {
	return clamp(page, 1, math.MaxInt32/limit)
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
