package models

import "time"

// Booking is one customer's reservation against a batch. Capacity for all
// its participants is reserved at creation time and released when the
// booking is cancelled, swept or archived; payment confirmation never
// touches the ledger. Version backs optimistic status transitions.
type Booking struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	TrekID       int64  `json:"trek_id"`
	BatchID      int64  `json:"batch_id"`
	Participants int    `json:"participants"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	// TotalPrice is in paise, computed once at creation and immutable.
	TotalPrice  int64  `json:"total_price"`
	PaymentMode string `json:"payment_mode"` // full, partial
	Status      string `json:"status"`

	Payment PaymentDetails `json:"payment"`
	Session BookingSession `json:"session"`

	// Booking-level refund mirrors, used for whole-booking cancellation.
	RefundStatus string     `json:"refund_status"`
	RefundAmount int64      `json:"refund_amount"`
	RefundDate   *time.Time `json:"refund_date,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`

	Details []Participant `json:"participant_details"`
}

// ActiveParticipants counts participants not individually cancelled.
func (b *Booking) ActiveParticipants() int {
	n := 0
	for i := range b.Details {
		if !b.Details[i].IsCancelled {
			n++
		}
	}
	return n
}

// RefundedTotal sums all refunds recorded so far, booking-level and
// per-participant. Further refunds are capped at TotalPrice minus this.
func (b *Booking) RefundedTotal() int64 {
	total := int64(0)
	if b.RefundStatus == RefundSuccess || b.RefundStatus == RefundProcessing {
		total += b.RefundAmount
	}
	for i := range b.Details {
		p := &b.Details[i]
		if p.RefundStatus == RefundSuccess || p.RefundStatus == RefundProcessing {
			total += p.RefundAmount
		}
	}
	return total
}

// Participant is one person on a booking with independent cancellation and
// refund state.
type Participant struct {
	ID           int64      `json:"id"`
	BookingID    int64      `json:"booking_id"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	Gender       string     `json:"gender"`
	MedicalNotes string     `json:"medical_notes,omitempty"`
	IsCancelled  bool       `json:"is_cancelled"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	RefundStatus string     `json:"refund_status"`
	RefundAmount int64      `json:"refund_amount"`
	RefundDate   *time.Time `json:"refund_date,omitempty"`
}

// PaymentDetails holds the gateway references and the partial-payment
// breakdown. Amounts are paise.
type PaymentDetails struct {
	OrderRef        string     `json:"order_ref,omitempty"`
	PaymentRef      string     `json:"payment_ref,omitempty"`
	InitialAmount   int64      `json:"initial_amount"`
	RemainingAmount int64      `json:"remaining_amount"`
	DueDate         *time.Time `json:"due_date,omitempty"`
}

// BookingSession bounds the pending-payment window. It is persisted on the
// booking row and mirrored into the expiring session store.
type BookingSession struct {
	SessionID          string     `json:"session_id"`
	ExpiresAt          time.Time  `json:"expires_at"`
	PaymentAttempts    int        `json:"payment_attempts"`
	LastPaymentAttempt *time.Time `json:"last_payment_attempt,omitempty"`
}

// Expired reports whether the payment window has closed.
func (s *BookingSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}
