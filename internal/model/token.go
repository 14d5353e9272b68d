package model

import "time"

// AuthToken is a single-use magic-link credential. Held in the in-memory
// fast store and mirrored to the magic_links table for restart survival.
type AuthToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t AuthToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
