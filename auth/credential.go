// Package auth owns the credential lifecycle: the durable credential and
// preferences record, and the Gateway that decorates outgoing requests with the
// bearer token and recovers from a 401 with a single shared refresh.
package auth

import (
	"errors"
	"time"

	"diarysync/model"
)

// ErrNoCredentials is returned when an operation needs a signed-in user.
var ErrNoCredentials = errors.New("no credentials")

// Credential is the persisted bearer pair with its expiry and owner.
type Credential struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	UserID       string     `json:"userId"`
	Tier         model.Tier `json:"tier"`
}

// ExpiredAt reports whether the access token is expired at now. A zero expiry
// always counts as expired.
func (c Credential) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.IsZero() || !now.Before(c.ExpiresAt)
}

// Tokens is what the server returns from login, register and refresh.
// ExpiresIn is in seconds.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	UserID       string
	Tier         model.Tier
}

// Preferences are user settings kept next to the credential. Clearing the
// credential leaves them intact.
type Preferences struct {
	DarkMode             bool                    `json:"darkMode"`
	NotificationsEnabled bool                    `json:"notificationsEnabled"`
	WatermarkPosition    model.WatermarkPosition `json:"watermarkPosition,omitempty"`
	PushToken            string                  `json:"pushToken,omitempty"`
}
