package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID                int64  `json:"id,omitempty"`
	Email             string `json:"email,omitempty"`
	Username          string `json:"username,omitempty"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	}
	return u.Email
}

// Session is the persisted {token, user} record. The zero value is the
// unauthenticated state; token and user are always set or cleared together.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func NewSession(token string, u User) Session { return Session{Token: token, User: &u} }

func (s Session) Authenticated() bool { return s.Token != "" && s.User != nil }

// Complete reports whether a decoded record honors the token/user pairing.
func (s Session) Complete() bool { return s.Authenticated() }

// TokenExpiry reads the exp claim when the bearer token is a JWT. The
// signature is not checked: the token stays opaque to this client and the
// value is informational only.
func (s Session) TokenExpiry() (time.Time, bool) {
	if s.Token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Profile is the registration form.
type Profile struct {
	Email             string `json:"email" validate:"required,email"`
	Username          string `json:"username" validate:"required"`
	Password          string `json:"password" validate:"required,min=6"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty" validate:"omitempty,http_url"`
}
