package models

import "time"

// SessionRecord is the expiring session-store entry keyed by session ID.
// It mirrors the booking row's session fields so expiry can be checked
// without a database read.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
