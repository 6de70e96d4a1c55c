package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// apiClient is a thin JSON client for the carpool API.
type apiClient struct {
	base  string
	httpc *http.Client
}

type apiUser struct {
	ID    string
	Token string
}

func (a *apiClient) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func expect(code int, err error, want int, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if code != want {
		return fmt.Errorf("%s: status %d, want %d", what, code, want)
	}
	return nil
}

// register creates a throwaway account.
func (a *apiClient) register(ctx context.Context, name string) (apiUser, error) {
	var session struct {
		User  struct{ ID string } `json:"user"`
		Token string              `json:"token"`
	}
	code, err := a.do(ctx, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    fmt.Sprintf("bench-%s@carpool.local", uuid.NewString()),
		"password": "bench-password",
		"name":     name,
	}, &session)
	if err := expect(code, err, http.StatusCreated, "register"); err != nil {
		return apiUser{}, err
	}
	return apiUser{ID: session.User.ID, Token: session.Token}, nil
}

func (a *apiClient) driver(ctx context.Context) (apiUser, error) {
	u, err := a.register(ctx, "Bench Driver")
	if err != nil {
		return u, err
	}
	code, err := a.do(ctx, http.MethodPut, "/users/me/mode", u.Token, map[string]any{
		"mode":    "driver",
		"vehicle": map[string]string{"model": "Bench", "color": "grey", "plate": "BENCH-1"},
	}, nil)
	return u, expect(code, err, http.StatusOK, "switch to driver")
}

func (a *apiClient) offer(ctx context.Context, d apiUser, seats int) (string, error) {
	dep := time.Now().Add(24 * time.Hour).UTC()
	var r struct{ ID string }
	code, err := a.do(ctx, http.MethodPost, "/rides", d.Token, map[string]any{
		"pickupLocation":  map[string]any{"address": "Taipei 101", "lat": 25.0340, "lng": 121.5645},
		"dropoffLocation": map[string]any{"address": "Taoyuan Airport", "lat": 25.0797, "lng": 121.2342},
		"departureTime":   dep.Format(time.RFC3339),
		"arrivalTime":     dep.Add(time.Hour).Format(time.RFC3339),
		"price":           "15",
		"seatsAvailable":  seats,
		"distance":        40,
	}, &r)
	return r.ID, expect(code, err, http.StatusCreated, "create ride")
}

func (a *apiClient) book(ctx context.Context, p apiUser, rideID string) (string, int, error) {
	var b struct{ ID string }
	code, err := a.do(ctx, http.MethodPost, "/rides/"+rideID+"/book", p.Token, nil, &b)
	return b.ID, code, err
}

func (a *apiClient) seatsLeft(ctx context.Context, rideID string) (int, error) {
	var r struct {
		SeatsAvailable int `json:"seatsAvailable"`
	}
	code, err := a.do(ctx, http.MethodGet, "/rides/"+rideID, "", nil, &r)
	return r.SeatsAvailable, expect(code, err, http.StatusOK, "get ride")
}
