package domain

import (
	"context"
	"time"

	"trekbook/internal/models"
)

// Repository is the persistence port backing the booking and archive
// services.
type Repository interface {
	GetTrek(ctx context.Context, id int64) (*models.Trek, error)
	GetBatch(ctx context.Context, id int64) (*models.Batch, error)
	UpsertTrek(ctx context.Context, trek *models.Trek) error
	UpsertBatch(ctx context.Context, batch *models.Batch) error
	GetBatchAvailability(ctx context.Context, batchID int64) (*models.Availability, error)
	GetTrekAvailability(ctx context.Context, trekID int64) ([]*models.Availability, error)

	CreateBookingWithCapacity(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetParticipant(ctx context.Context, bookingID, participantID int64) (*models.Participant, error)
	MarkConfirmed(ctx context.Context, id int64, orderRef, paymentRef string) error
	MarkCompleted(ctx context.Context, id int64) error
	SetOrderRef(ctx context.Context, id int64, orderRef string) error
	RecordPaymentAttempt(ctx context.Context, id int64, at time.Time) error
	CancelBookingWithCapacity(ctx context.Context, id int64, now time.Time) (*models.Booking, error)
	CancelParticipantWithCapacity(ctx context.Context, bookingID, participantID int64, now time.Time) error
	RestoreParticipantWithCapacity(ctx context.Context, bookingID, participantID int64) error
	SetBookingRefund(ctx context.Context, id int64, status string, amount int64, refundDate *time.Time) error
	SetParticipantRefund(ctx context.Context, participantID int64, status string, amount int64, refundDate *time.Time) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListBookingsByBatchRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)

	ArchiveBooking(ctx context.Context, bookingID int64, reason, archivedBy string, now time.Time) (*models.FailedBooking, error)
	RestoreFailedBooking(ctx context.Context, archiveID int64, sessionID string, expiresAt time.Time) (*models.Booking, error)
	GetFailedBooking(ctx context.Context, id int64) (*models.FailedBooking, error)
	ListFailedBookings(ctx context.Context, filter models.ArchiveFilter) ([]*models.FailedBooking, error)
	DeleteFailedBooking(ctx context.Context, id int64) error
}

// SessionStore is the expiring session mirror with a per-user rate limit.
type SessionStore interface {
	SaveSession(ctx context.Context, record *models.SessionRecord, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier pushes operational alerts (archived bookings, cancellations,
// failed refunds) to the ops channel. Failures are logged, never propagated.
type Notifier interface {
	NotifyBookingArchived(fb *models.FailedBooking)
	NotifyRefundFailed(bookingID int64, amount int64, err error)
	NotifyBookingConfirmed(booking *models.Booking)
	NotifyBookingCancelled(booking *models.Booking, refundAmount int64)
	NotifyParticipantCancelled(booking *models.Booking, participantID, refundAmount int64)
}

// SheetsWriter mirrors confirmed bookings onto the operations roster.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

// SyncWorker queues roster updates for asynchronous delivery.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}
