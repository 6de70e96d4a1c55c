package ai

import (
	"strconv"

	"carpool/internal/modules/ride"
)

// SearchIntent captures the structured output from the model. Every field is
// optional; nil means the user did not constrain it.
type SearchIntent struct {
	Pickup    *string  `json:"pickup,omitempty"`
	Dropoff   *string  `json:"dropoff,omitempty"`
	Date      *string  `json:"date,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinSeats  *int     `json:"min_seats,omitempty"`
	SortBy    string   `json:"sort_by,omitempty"`
	SortOrder string   `json:"sort_order,omitempty"`
}

// Params converts the intent into raw search parameters so it goes through
// the same validation as a query-string search.
func (i *SearchIntent) Params() ride.SearchParams {
	var p ride.SearchParams
	if i.Pickup != nil {
		p.Pickup = *i.Pickup
	}
	if i.Dropoff != nil {
		p.Dropoff = *i.Dropoff
	}
	if i.Date != nil {
		p.Date = *i.Date
	}
	if i.MaxPrice != nil {
		p.MaxPrice = strconv.FormatFloat(*i.MaxPrice, 'f', -1, 64)
	}
	if i.MinSeats != nil {
		p.MinSeats = strconv.Itoa(*i.MinSeats)
	}
	p.SortBy = i.SortBy
	p.SortOrder = i.SortOrder
	return p
}
