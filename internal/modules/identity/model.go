// README: User aggregate, operating mode, and public profile projection.
package identity

import (
	"encoding/json"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

// Mode is the user's exclusive operating mode: shopping for rides or
// offering them, never both at once.
type Mode string

const (
	ModePassenger Mode = "passenger"
	ModeDriver    Mode = "driver"
)

func (m Mode) Valid() bool {
	return m == ModePassenger || m == ModeDriver
}

type Vehicle struct {
	Model string `json:"model"`
	Color string `json:"color"`
	Plate string `json:"plate"`
}

type User struct {
	ID           types.ID  `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	PhotoURL     string    `json:"photoUrl"`
	Mode         Mode      `json:"mode"`
	Vehicle      *Vehicle  `json:"vehicle,omitempty"`
	Rating       float64   `json:"rating"`
	RatingCount  int64     `json:"ratingCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) IsDriver() bool { return u.Mode == ModeDriver }

// MarshalJSON adds the isDriver flag clients key off.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		IsDriver bool `json:"isDriver"`
	}{plain(u), u.Mode == ModeDriver})
}

// PublicProfile is what other users may see about someone.
type PublicProfile struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Rating   float64  `json:"rating"`
	PhotoURL string   `json:"photoUrl"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{ID: u.ID, Name: u.Name, Phone: u.Phone, Rating: u.Rating, PhotoURL: u.PhotoURL}
}

var ErrNotFound = apperr.NotFound("User not found")

// RequireMode is the single authorization dispatch on operating mode.
func RequireMode(u *User, want Mode) error {
	if u.Mode == want {
		return nil
	}
	switch want {
	case ModeDriver:
		return apperr.Forbidden("Only drivers can perform this action")
	default:
		return apperr.Forbidden("Drivers cannot perform this action; switch to passenger mode")
	}
}
