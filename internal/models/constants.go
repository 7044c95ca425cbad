package models

import "time"

// Booking statuses. Cancelled and completed are terminal.
const (
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusCancelled      = "cancelled"
	StatusCompleted      = "completed"
)

// Batch statuses.
const (
	BatchActive = "active"
	BatchClosed = "closed"
)

// Payment modes.
const (
	PaymentModeFull    = "full"
	PaymentModePartial = "partial"
)

// Partial-payment policy types.
const (
	PartialTypePercentage = "percentage"
	PartialTypeFixed      = "fixed"
)

// Refund statuses, shared by booking-level and participant-level fields.
const (
	RefundNotApplicable = "not_applicable"
	RefundProcessing    = "processing"
	RefundSuccess       = "success"
	RefundFailed        = "failed"
)

// Failure reasons recorded on archived bookings.
const (
	FailureSessionExpired = "session_expired"
	FailurePaymentFailed  = "payment_failed"
	FailureUserCancelled  = "user_cancelled"
	FailureSystemError    = "system_error"
)

const (
	// DefaultSessionWindow is the pending-payment window for a new booking.
	DefaultSessionWindow = 30 * time.Minute

	// MaxPaymentAttempts bounds verification retries before a booking is
	// left to the reconciler.
	MaxPaymentAttempts = 3

	// DefaultSweepInterval is how often the reconciler scans for expired
	// sessions when no interval is configured.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultCurrency for gateway orders.
	DefaultCurrency = "INR"

	// PaisePerRupee converts catalog rupee amounts to the minor unit once,
	// at config load. Everything downstream works in paise.
	PaisePerRupee = 100

	// WorkerQueueSize caps the roster worker's in-memory fallback queue.
	WorkerQueueSize = 128
)
