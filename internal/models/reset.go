package models

import "time"

// ResetRecord is the server-side state of one in-flight password reset.
// At most one record exists per identity; a new request overwrites it.
type ResetRecord struct {
	Identity  string    `json:"identity"`
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record's validity window has passed at t.
func (r *ResetRecord) Expired(t time.Time) bool {
	return t.After(r.ExpiresAt)
}
