package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"carpool/internal/types"
)

var ErrNoPlace = errors.New("no place matches the address")

// Locate resolves a free-text address to coordinates through Places text
// search, taking the best match.
func (s *RouteService) Locate(ctx context.Context, address string) (types.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Point{}, ErrNoPlace
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{Query: address})
	if err != nil {
		return types.Point{}, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return types.Point{}, ErrNoPlace
	}
	loc := resp.Results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
