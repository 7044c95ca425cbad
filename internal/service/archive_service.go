package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trekbook/internal/domain"
	"trekbook/internal/events"
	"trekbook/internal/models"
)

// ArchiveService exposes the failed-booking archive to admins: listing,
// restore back to a live pending booking, and permanent deletion.
type ArchiveService struct {
	repo          domain.Repository
	sessions      domain.SessionStore
	eventBus      domain.EventPublisher
	sessionWindow time.Duration
	logger        *zerolog.Logger
}

func NewArchiveService(repo domain.Repository, sessions domain.SessionStore, eventBus domain.EventPublisher, sessionWindow time.Duration, logger *zerolog.Logger) *ArchiveService {
	if sessionWindow <= 0 {
		sessionWindow = models.DefaultSessionWindow
	}
	return &ArchiveService{
		repo:          repo,
		sessions:      sessions,
		eventBus:      eventBus,
		sessionWindow: sessionWindow,
		logger:        logger,
	}
}

func (s *ArchiveService) List(ctx context.Context, filter models.ArchiveFilter) ([]*models.FailedBooking, error) {
	return s.repo.ListFailedBookings(ctx, filter)
}

func (s *ArchiveService) Get(ctx context.Context, id int64) (*models.FailedBooking, error) {
	return s.repo.GetFailedBooking(ctx, id)
}

// Archive moves a live booking into the archive on an admin's behalf.
func (s *ArchiveService) Archive(ctx context.Context, bookingID int64, reason, archivedBy string) (*models.FailedBooking, error) {
	if reason == "" {
		reason = models.FailureSystemError
	}
	fb, err := s.repo.ArchiveBooking(ctx, bookingID, reason, archivedBy, time.Now())
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.BookingEventPayload{
			BookingID:     fb.OriginalBookingID,
			UserID:        fb.UserID,
			TrekID:        fb.TrekID,
			BatchID:       fb.BatchID,
			Participants:  fb.Participants,
			TotalPrice:    fb.TotalPrice,
			FailureReason: reason,
			OccurredAt:    fb.ArchivedAt,
		}
		if err := s.eventBus.PublishJSON(events.EventBookingArchived, payload); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", fb.OriginalBookingID).Msg("publish event error")
		}
	}

	s.logger.Info().
		Int64("booking_id", fb.OriginalBookingID).
		Str("reason", reason).
		Str("archived_by", archivedBy).
		Msg("booking archived")
	return fb, nil
}

// Restore rebuilds a pending booking from the archive with a fresh payment
// window. Fails with ErrCapacityExceeded when the batch has filled up since.
func (s *ArchiveService) Restore(ctx context.Context, archiveID int64) (*models.Booking, error) {
	sessionID := uuid.NewString()
	expiresAt := time.Now().Add(s.sessionWindow)

	booking, err := s.repo.RestoreFailedBooking(ctx, archiveID, sessionID, expiresAt)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		record := &models.SessionRecord{
			SessionID: sessionID,
			BookingID: booking.ID,
			UserID:    booking.UserID,
			ExpiresAt: expiresAt,
		}
		if err := s.sessions.SaveSession(ctx, record, s.sessionWindow); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to save session")
		}
	}

	s.logger.Info().
		Int64("archive_id", archiveID).
		Int64("booking_id", booking.ID).
		Msg("failed booking restored")
	return booking, nil
}

// Delete removes an archive row permanently.
func (s *ArchiveService) Delete(ctx context.Context, archiveID int64) error {
	if err := s.repo.DeleteFailedBooking(ctx, archiveID); err != nil {
		return err
	}
	s.logger.Info().Int64("archive_id", archiveID).Msg("failed booking deleted")
	return nil
}
