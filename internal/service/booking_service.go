package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trekbook/internal/database"
	"trekbook/internal/domain"
	"trekbook/internal/events"
	"trekbook/internal/gateway"
	"trekbook/internal/metrics"
	"trekbook/internal/models"
	"trekbook/internal/refund"
)

// ParticipantInput is one traveller on a booking request.
type ParticipantInput struct {
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	MedicalNotes string `json:"medical_notes"`
}

// CreateBookingRequest carries everything needed to open a booking.
type CreateBookingRequest struct {
	UserID       int64              `json:"user_id"`
	TrekID       int64              `json:"trek_id"`
	BatchID      int64              `json:"batch_id"`
	ContactName  string             `json:"contact_name"`
	ContactEmail string             `json:"contact_email"`
	ContactPhone string             `json:"contact_phone"`
	PaymentMode  string             `json:"payment_mode"`
	AddOns       []string           `json:"add_ons"`
	CouponCode   string             `json:"coupon_code"`
	Participants []ParticipantInput `json:"participants"`
}

type BookingService struct {
	repo            domain.Repository
	sessions        domain.SessionStore
	gateway         gateway.PaymentGateway
	eventBus        domain.EventPublisher
	notifier        domain.Notifier
	sheetsWorker    domain.SyncWorker
	sessionWindow   time.Duration
	maxAttempts     int
	currency        string
	rateLimitCount  int
	rateLimitWindow time.Duration
	logger          *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	sessions domain.SessionStore,
	gw gateway.PaymentGateway,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	sheetsWorker domain.SyncWorker,
	sessionWindow time.Duration,
	maxAttempts int,
	currency string,
	logger *zerolog.Logger,
) *BookingService {
	if sessionWindow <= 0 {
		sessionWindow = models.DefaultSessionWindow
	}
	if maxAttempts <= 0 {
		maxAttempts = models.MaxPaymentAttempts
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &BookingService{
		repo:          repo,
		sessions:      sessions,
		gateway:       gw,
		eventBus:      eventBus,
		notifier:      notifier,
		sheetsWorker:  sheetsWorker,
		sessionWindow: sessionWindow,
		maxAttempts:   maxAttempts,
		currency:      currency,
		logger:        logger,
	}
}

// WithRateLimit caps CreateBooking per user to count requests per window.
// Zero count disables the limiter.
func (s *BookingService) WithRateLimit(count int, window time.Duration) *BookingService {
	s.rateLimitCount = count
	s.rateLimitWindow = window
	return s
}

// CreateBooking prices the request, reserves seats and opens the payment
// session. The gateway order is created best-effort; when it fails the
// booking stays pending and confirmation binds a fresh order first.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*models.Booking, error) {
	if len(req.Participants) == 0 {
		return nil, ErrInvalidParticipants
	}

	if s.rateLimitCount > 0 {
		allowed, err := s.sessions.CheckRateLimit(ctx, req.UserID, s.rateLimitCount, s.rateLimitWindow)
		if err != nil {
			// Fail open: a broken limiter store must not block checkout.
			s.logger.Warn().Err(err).Int64("user_id", req.UserID).Msg("rate limit check failed")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	trek, err := s.repo.GetTrek(ctx, req.TrekID)
	if err != nil {
		return nil, err
	}
	if !trek.IsActive {
		return nil, ErrTrekInactive
	}

	batch, err := s.repo.GetBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.TrekID != trek.ID {
		return nil, ErrBatchMismatch
	}
	if batch.Status != models.BatchActive {
		return nil, database.ErrBatchClosed
	}

	mode := req.PaymentMode
	if mode == "" {
		mode = models.PaymentModeFull
	}
	quote, err := ComputeQuote(trek, batch, len(req.Participants), req.AddOns, req.CouponCode, mode)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	booking := &models.Booking{
		UserID:       req.UserID,
		TrekID:       trek.ID,
		BatchID:      batch.ID,
		Participants: len(req.Participants),
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		TotalPrice:   quote.Total,
		PaymentMode:  mode,
		Payment: models.PaymentDetails{
			InitialAmount:   quote.InitialAmount,
			RemainingAmount: quote.Remaining,
			DueDate:         quote.DueDate,
		},
		Session: models.BookingSession{
			SessionID: uuid.NewString(),
			ExpiresAt: now.Add(s.sessionWindow),
		},
	}
	booking.Details = make([]models.Participant, len(req.Participants))
	for i, p := range req.Participants {
		booking.Details[i] = models.Participant{
			Name:         p.Name,
			Age:          p.Age,
			Gender:       p.Gender,
			MedicalNotes: p.MedicalNotes,
		}
	}

	if err := s.repo.CreateBookingWithCapacity(ctx, booking); err != nil {
		return nil, err
	}

	if order, err := s.gateway.CreateOrder(ctx, quote.InitialAmount, s.currency, fmt.Sprintf("booking-%d", booking.ID)); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("gateway order creation failed, will retry on confirm")
	} else {
		booking.Payment.OrderRef = order.ID
		if err := s.repo.SetOrderRef(ctx, booking.ID, order.ID); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to persist order ref")
		}
	}

	s.saveSession(ctx, booking)
	s.publishEvent(events.EventBookingCreated, booking, 0, 0, "")
	metrics.IncBookingCreated()

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("batch_id", batch.ID).
		Int("participants", booking.Participants).
		Int64("total_price", booking.TotalPrice).
		Str("payment_mode", mode).
		Msg("booking created")
	return booking, nil
}

// ConfirmPayment verifies the gateway signature and moves the booking to
// confirmed. Re-confirming with the same payment reference is an idempotent
// success.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID int64, orderRef, paymentRef, signature string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.StatusConfirmed {
		if booking.Payment.PaymentRef == paymentRef {
			return booking, nil
		}
		return nil, database.ErrConflictingState
	}
	if booking.Status != models.StatusPendingPayment {
		return nil, database.ErrConflictingState
	}

	now := time.Now()
	if booking.Session.Expired(now) {
		return nil, ErrSessionExpired
	}
	if booking.Session.PaymentAttempts >= s.maxAttempts {
		return nil, ErrTooManyAttempts
	}
	if err := s.ensureOrderRef(ctx, booking); err != nil {
		return nil, err
	}

	if err := s.repo.RecordPaymentAttempt(ctx, bookingID, now); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("failed to record payment attempt")
	}

	// Only a payment against the bound order confirms this booking.
	if booking.Payment.OrderRef != orderRef {
		metrics.IncPaymentConfirmation("failed")
		return nil, gateway.ErrVerificationFailed
	}
	if err := s.gateway.VerifySignature(orderRef, paymentRef, signature); err != nil {
		s.logger.Warn().
			Int64("booking_id", bookingID).
			Int("attempt", booking.Session.PaymentAttempts+1).
			Msg("payment signature verification failed")
		metrics.IncPaymentConfirmation("failed")
		return nil, err
	}

	if err := s.repo.MarkConfirmed(ctx, bookingID, orderRef, paymentRef); err != nil {
		if errors.Is(err, database.ErrConflictingState) {
			// Lost the race to another confirm; idempotent if it carried the
			// same payment.
			current, gerr := s.repo.GetBooking(ctx, bookingID)
			if gerr == nil && current.Status == models.StatusConfirmed && current.Payment.PaymentRef == paymentRef {
				return current, nil
			}
		}
		return nil, err
	}

	s.dropSession(ctx, booking.Session.SessionID)

	confirmed, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	metrics.IncPaymentConfirmation("success")
	s.publishEvent(events.EventPaymentConfirmed, confirmed, 0, 0, "")
	s.enqueueSync(ctx, confirmed, models.TaskRosterUpsert, "")
	if s.notifier != nil {
		s.notifier.NotifyBookingConfirmed(confirmed)
	}

	s.logger.Info().Int64("booking_id", bookingID).Str("payment_ref", paymentRef).Msg("payment confirmed")
	return confirmed, nil
}

// ensureOrderRef binds a gateway order when creation failed at booking time.
// The booking confirms only against its bound order, so the caller has to
// fetch the booking and pay the fresh order.
func (s *BookingService) ensureOrderRef(ctx context.Context, booking *models.Booking) error {
	if booking.Payment.OrderRef != "" {
		return nil
	}

	order, err := s.gateway.CreateOrder(ctx, booking.Payment.InitialAmount, s.currency, fmt.Sprintf("booking-%d", booking.ID))
	if err != nil {
		return err
	}
	if err := s.repo.SetOrderRef(ctx, booking.ID, order.ID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to persist order ref")
		return err
	}
	booking.Payment.OrderRef = order.ID

	s.logger.Info().Int64("booking_id", booking.ID).Str("order_ref", order.ID).Msg("gateway order bound on confirm")
	return nil
}

// CancelBooking cancels the whole booking, releases its seats and issues
// the tiered refund on whatever was captured. State changes first; a refund
// failure leaves the booking cancelled with refund_status=failed for ops to
// retry.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.GetBatch(ctx, booking.BatchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	captured := int64(0)
	if booking.Status == models.StatusConfirmed && booking.Payment.PaymentRef != "" {
		captured = booking.Payment.InitialAmount
	}

	cancelled, err := s.repo.CancelBookingWithCapacity(ctx, bookingID, now)
	if err != nil {
		return nil, err
	}
	s.dropSession(ctx, booking.Session.SessionID)

	refundAmount := int64(0)
	if captured > 0 {
		refundAmount = refund.Amount(refund.ModeTiered, captured, now, batch.StartDate)
		refundAmount = s.capRefund(cancelled, refundAmount)
	}

	if refundAmount > 0 {
		s.issueBookingRefund(ctx, cancelled, refundAmount)
	}

	final, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		final = cancelled
	}

	metrics.IncCancellation("booking")
	s.publishEvent(events.EventBookingCancelled, final, 0, refundAmount, "")
	s.enqueueSync(ctx, final, models.TaskRosterStatus, models.StatusCancelled)
	if s.notifier != nil {
		s.notifier.NotifyBookingCancelled(final, refundAmount)
	}

	s.logger.Info().
		Int64("booking_id", bookingID).
		Int64("refund_amount", refundAmount).
		Msg("booking cancelled")
	return final, nil
}

// CancelParticipant cancels a single traveller, releases their seat and
// refunds their equal share of the captured amount at the current tier.
func (s *BookingService) CancelParticipant(ctx context.Context, bookingID, participantID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.GetBatch(ctx, booking.BatchID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range booking.Details {
		if booking.Details[i].ID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, database.ErrNotFound
	}

	now := time.Now()
	if err := s.repo.CancelParticipantWithCapacity(ctx, bookingID, participantID, now); err != nil {
		return nil, err
	}

	refundAmount := int64(0)
	if booking.Status == models.StatusConfirmed && booking.Payment.PaymentRef != "" {
		shares := refund.Split(booking.Payment.InitialAmount, booking.Participants)
		share := shares[idx]
		refundAmount = refund.Amount(refund.ModeTiered, share, now, batch.StartDate)
	}

	if refundAmount > 0 {
		current, err := s.repo.GetBooking(ctx, bookingID)
		if err == nil {
			refundAmount = s.capRefund(current, refundAmount)
		}
	}
	if refundAmount > 0 {
		s.issueParticipantRefund(ctx, booking, participantID, refundAmount)
	}

	final, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	metrics.IncCancellation("participant")
	s.publishEvent(events.EventParticipantCancelled, final, participantID, refundAmount, "")
	s.enqueueSync(ctx, final, models.TaskRosterUpsert, "")
	if s.notifier != nil {
		s.notifier.NotifyParticipantCancelled(final, participantID, refundAmount)
	}

	s.logger.Info().
		Int64("booking_id", bookingID).
		Int64("participant_id", participantID).
		Int64("refund_amount", refundAmount).
		Msg("participant cancelled")
	return final, nil
}

// RestoreParticipant reverses a participant cancellation if a seat is still
// free. Any refund already issued stays on record.
func (s *BookingService) RestoreParticipant(ctx context.Context, bookingID, participantID int64) (*models.Booking, error) {
	if err := s.repo.RestoreParticipantWithCapacity(ctx, bookingID, participantID); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventParticipantRestored, booking, participantID, 0, "")
	s.enqueueSync(ctx, booking, models.TaskRosterUpsert, "")
	return booking, nil
}

// CompleteBooking marks a confirmed booking completed after the trek runs.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	existing, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.GetBatch(ctx, existing.BatchID)
	if err != nil {
		return nil, err
	}
	if !batch.EndDate.IsZero() && time.Now().Before(batch.EndDate) {
		return nil, ErrBatchNotFinished
	}

	if err := s.repo.MarkCompleted(ctx, bookingID); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingCompleted, booking, 0, 0, "")
	s.enqueueSync(ctx, booking, models.TaskRosterStatus, models.StatusCompleted)
	return booking, nil
}

// SweepExpired archives pending bookings whose session closed before now.
// Returns the number archived; individual failures are logged and skipped.
func (s *BookingService) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.repo.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, b := range expired {
		reason := models.FailureSessionExpired
		if b.Session.PaymentAttempts >= s.maxAttempts {
			reason = models.FailurePaymentFailed
		}
		fb, err := s.repo.ArchiveBooking(ctx, b.ID, reason, "reconciler", now)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to archive expired booking")
			continue
		}
		s.dropSession(ctx, b.Session.SessionID)
		s.publishEvent(events.EventBookingArchived, b, 0, 0, reason)
		if s.notifier != nil {
			s.notifier.NotifyBookingArchived(fb)
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info().Int("swept", swept).Msg("expired bookings archived")
	}
	return swept, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.repo.ListUserBookings(ctx, userID)
}

// GetBookingsByBatchRange lists bookings on batches departing inside
// [start, end].
func (s *BookingService) GetBookingsByBatchRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.repo.ListBookingsByBatchRange(ctx, start, end)
}

func (s *BookingService) GetBatchAvailability(ctx context.Context, batchID int64) (*models.Availability, error) {
	return s.repo.GetBatchAvailability(ctx, batchID)
}

func (s *BookingService) GetTrekAvailability(ctx context.Context, trekID int64) ([]*models.Availability, error) {
	return s.repo.GetTrekAvailability(ctx, trekID)
}

// capRefund clamps amount so that total refunds never exceed the booking's
// price.
func (s *BookingService) capRefund(booking *models.Booking, amount int64) int64 {
	remaining := booking.TotalPrice - booking.RefundedTotal()
	if remaining < amount {
		s.logger.Warn().
			Int64("booking_id", booking.ID).
			Int64("requested", amount).
			Int64("remaining", remaining).
			Msg("refund clamped to remaining refundable amount")
	}
	if remaining <= 0 {
		return 0
	}
	if amount > remaining {
		return remaining
	}
	return amount
}

func (s *BookingService) issueBookingRefund(ctx context.Context, booking *models.Booking, amount int64) {
	if err := s.repo.SetBookingRefund(ctx, booking.ID, models.RefundProcessing, amount, nil); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to mark refund processing")
	}

	if _, err := s.gateway.CreateRefund(ctx, booking.Payment.PaymentRef, amount); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Int64("amount", amount).Msg("gateway refund failed")
		if serr := s.repo.SetBookingRefund(ctx, booking.ID, models.RefundFailed, amount, nil); serr != nil {
			s.logger.Error().Err(serr).Int64("booking_id", booking.ID).Msg("failed to mark refund failed")
		}
		if s.notifier != nil {
			s.notifier.NotifyRefundFailed(booking.ID, amount, err)
		}
		s.publishEvent(events.EventRefundFailed, booking, 0, amount, "")
		metrics.IncRefund("failed")
		return
	}

	now := time.Now()
	if err := s.repo.SetBookingRefund(ctx, booking.ID, models.RefundSuccess, amount, &now); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to mark refund success")
	}
	metrics.IncRefund("success")
}

func (s *BookingService) issueParticipantRefund(ctx context.Context, booking *models.Booking, participantID int64, amount int64) {
	if err := s.repo.SetParticipantRefund(ctx, participantID, models.RefundProcessing, amount, nil); err != nil {
		s.logger.Error().Err(err).Int64("participant_id", participantID).Msg("failed to mark refund processing")
	}

	if _, err := s.gateway.CreateRefund(ctx, booking.Payment.PaymentRef, amount); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Int64("participant_id", participantID).Msg("gateway refund failed")
		if serr := s.repo.SetParticipantRefund(ctx, participantID, models.RefundFailed, amount, nil); serr != nil {
			s.logger.Error().Err(serr).Int64("participant_id", participantID).Msg("failed to mark refund failed")
		}
		if s.notifier != nil {
			s.notifier.NotifyRefundFailed(booking.ID, amount, err)
		}
		s.publishEvent(events.EventRefundFailed, booking, participantID, amount, "")
		metrics.IncRefund("failed")
		return
	}

	now := time.Now()
	if err := s.repo.SetParticipantRefund(ctx, participantID, models.RefundSuccess, amount, &now); err != nil {
		s.logger.Error().Err(err).Int64("participant_id", participantID).Msg("failed to mark refund success")
	}
	metrics.IncRefund("success")
}

func (s *BookingService) saveSession(ctx context.Context, booking *models.Booking) {
	if s.sessions == nil {
		return
	}
	record := &models.SessionRecord{
		SessionID: booking.Session.SessionID,
		BookingID: booking.ID,
		UserID:    booking.UserID,
		ExpiresAt: booking.Session.ExpiresAt,
	}
	if err := s.sessions.SaveSession(ctx, record, s.sessionWindow); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to save session")
	}
}

func (s *BookingService) dropSession(ctx context.Context, sessionID string) {
	if s.sessions == nil || sessionID == "" {
		return
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, participantID, refundAmount int64, failureReason string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		TrekID:        booking.TrekID,
		BatchID:       booking.BatchID,
		Status:        booking.Status,
		Participants:  booking.Participants,
		TotalPrice:    booking.TotalPrice,
		RefundAmount:  refundAmount,
		ParticipantID: participantID,
		FailureReason: failureReason,
		OccurredAt:    time.Now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType, status string) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("roster enqueue error")
	}
}
