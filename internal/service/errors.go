package service

import "errors"

var (
	ErrTrekInactive        = errors.New("trek is not active")
	ErrBatchMismatch       = errors.New("batch does not belong to trek")
	ErrInvalidParticipants = errors.New("at least one participant is required")
	ErrUnknownAddOn        = errors.New("unknown add-on")
	ErrInvalidCoupon       = errors.New("invalid coupon code")
	ErrPartialNotAllowed   = errors.New("partial payment not allowed for this trek")

	// ErrSessionExpired means the payment window closed before confirmation.
	// The reconciler will archive the booking.
	ErrSessionExpired = errors.New("booking session expired")

	// ErrTooManyAttempts means the verification attempt budget is spent.
	ErrTooManyAttempts = errors.New("too many payment attempts")

	// ErrRateLimited means the user exceeded the booking request budget.
	ErrRateLimited = errors.New("too many booking requests")

	// ErrBatchNotFinished guards completion: a booking is marked completed
	// only after the batch end date has passed.
	ErrBatchNotFinished = errors.New("batch has not finished yet")
)
