package models

import "time"

// FailedBooking is the archival snapshot of a booking that never reached
// confirmed. Participant and payment data are carried verbatim so an admin
// restore can rebuild the live booking.
type FailedBooking struct {
	ID                int64  `json:"id"`
	OriginalBookingID int64  `json:"original_booking_id"`
	UserID            int64  `json:"user_id"`
	TrekID            int64  `json:"trek_id"`
	BatchID           int64  `json:"batch_id"`
	Participants      int    `json:"participants"`
	ContactName       string `json:"contact_name"`
	ContactEmail      string `json:"contact_email"`
	ContactPhone      string `json:"contact_phone"`

	TotalPrice  int64  `json:"total_price"`
	PaymentMode string `json:"payment_mode"`

	Payment PaymentDetails `json:"payment"`
	Session BookingSession `json:"session"`

	FailureReason     string    `json:"failure_reason"`
	OriginalCreatedAt time.Time `json:"original_created_at"`
	ArchivedAt        time.Time `json:"archived_at"`
	ArchivedBy        string    `json:"archived_by"`

	Details []Participant `json:"participant_details"`
}

// ArchiveFilter narrows failed-booking listings and exports.
type ArchiveFilter struct {
	Reason string
	From   time.Time
	To     time.Time
}
