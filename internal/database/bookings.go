package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trekbook/internal/models"
)

const bookingColumns = `id, user_id, trek_id, batch_id, participants,
       contact_name, contact_email, contact_phone,
       total_price, payment_mode, status,
       order_ref, payment_ref, initial_amount, remaining_amount, due_date,
       session_id, expires_at, payment_attempts, last_payment_attempt,
       refund_status, refund_amount, refund_date, cancelled_at,
       created_at, updated_at, version`

// CreateBookingWithCapacity reserves seats and inserts the booking with its
// participants in one transaction. A full batch rolls everything back with
// ErrCapacityExceeded.
func (db *DB) CreateBookingWithCapacity(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := reserveCapacity(ctx, tx, booking.BatchID, booking.Participants); err != nil {
		return err
	}

	now := time.Now()
	query := `INSERT INTO bookings (
                user_id, trek_id, batch_id, participants,
                contact_name, contact_email, contact_phone,
                total_price, payment_mode, status,
                initial_amount, remaining_amount, due_date,
                session_id, expires_at, refund_status,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	result, err := tx.ExecContext(ctx, query,
		booking.UserID, booking.TrekID, booking.BatchID, booking.Participants,
		booking.ContactName, booking.ContactEmail, booking.ContactPhone,
		booking.TotalPrice, booking.PaymentMode, models.StatusPendingPayment,
		booking.Payment.InitialAmount, booking.Payment.RemainingAmount, booking.Payment.DueDate,
		booking.Session.SessionID, booking.Session.ExpiresAt, models.RefundNotApplicable,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i := range booking.Details {
		p := &booking.Details[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO booking_participants (booking_id, name, age, gender, medical_notes, refund_status)
             VALUES (?, ?, ?, ?, ?, ?)`,
			id, p.Name, p.Age, p.Gender, p.MedicalNotes, models.RefundNotApplicable,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		p.ID, _ = res.LastInsertId()
		p.BookingID = id
		p.RefundStatus = models.RefundNotApplicable
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Status = models.StatusPendingPayment
	booking.RefundStatus = models.RefundNotApplicable
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return nil, err
	}

	details, err := db.getParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.Details = details
	return booking, nil
}

func (db *DB) GetParticipant(ctx context.Context, bookingID, participantID int64) (*models.Participant, error) {
	query := `SELECT id, booking_id, name, age, gender, medical_notes,
                     is_cancelled, cancelled_at, refund_status, refund_amount, refund_date
              FROM booking_participants WHERE id = ? AND booking_id = ?`
	p, err := scanParticipant(db.QueryRowContext(ctx, query, participantID, bookingID))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MarkConfirmed transitions pending_payment to confirmed and stores the
// verified payment reference. Zero affected rows means the booking is not
// pending anymore; callers decide whether that is idempotent success or a
// conflict by re-reading the booking.
func (db *DB) MarkConfirmed(ctx context.Context, id int64, orderRef, paymentRef string) error {
	query := `UPDATE bookings
              SET status = ?, order_ref = ?, payment_ref = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusConfirmed, orderRef, paymentRef, time.Now(), id, models.StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConflictingState
	}
	return nil
}

// MarkCompleted transitions confirmed to completed.
func (db *DB) MarkCompleted(ctx context.Context, id int64) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, models.StatusCompleted, time.Now(), id, models.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to complete booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConflictingState
	}
	return nil
}

// SetOrderRef records the gateway order created for this booking's payment.
func (db *DB) SetOrderRef(ctx context.Context, id int64, orderRef string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET order_ref = ?, updated_at = ? WHERE id = ?`,
		orderRef, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set order ref: %w", err)
	}
	return nil
}

// RecordPaymentAttempt bumps the bounded verification-attempt counter.
func (db *DB) RecordPaymentAttempt(ctx context.Context, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET payment_attempts = payment_attempts + 1, last_payment_attempt = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record payment attempt: %w", err)
	}
	return nil
}

// CancelBookingWithCapacity marks the booking and all its participants
// cancelled and releases every seat still held, in one transaction.
// Already-cancelled bookings fail with ErrConflictingState and release
// nothing.
func (db *DB) CancelBookingWithCapacity(ctx context.Context, id int64, now time.Time) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	var batchID int64
	err = tx.QueryRowContext(ctx, `SELECT status, batch_id FROM bookings WHERE id = ?`, id).
		Scan(&status, &batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if status == models.StatusCancelled {
		return nil, ErrConflictingState
	}

	var activeSeats int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM booking_participants WHERE booking_id = ? AND is_cancelled = 0`, id).
		Scan(&activeSeats)
	if err != nil {
		return nil, fmt.Errorf("failed to count active participants: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, cancelled_at = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND status != ?`,
		models.StatusCancelled, now, now, id, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE booking_participants SET is_cancelled = 1, cancelled_at = ?
         WHERE booking_id = ? AND is_cancelled = 0`, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel participants: %w", err)
	}

	if activeSeats > 0 {
		if err := releaseCapacity(ctx, tx, batchID, activeSeats); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return db.GetBooking(ctx, id)
}

// CancelParticipantWithCapacity cancels one participant and releases one
// seat. The guard on is_cancelled makes repeated calls fail instead of
// double-releasing.
func (db *DB) CancelParticipantWithCapacity(ctx context.Context, bookingID, participantID int64, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	var batchID int64
	err = tx.QueryRowContext(ctx, `SELECT status, batch_id FROM bookings WHERE id = ?`, bookingID).
		Scan(&status, &batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if status == models.StatusCancelled {
		return ErrConflictingState
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE booking_participants SET is_cancelled = 1, cancelled_at = ?
         WHERE id = ? AND booking_id = ? AND is_cancelled = 0`,
		now, participantID, bookingID)
	if err != nil {
		return fmt.Errorf("failed to cancel participant: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM booking_participants WHERE id = ? AND booking_id = ?`,
			participantID, bookingID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflictingState
	}

	if err := releaseCapacity(ctx, tx, batchID, 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit participant cancellation: %w", err)
	}
	return nil
}

// RestoreParticipantWithCapacity reverses a participant cancellation after
// re-acquiring one seat. Refund fields are left untouched: a refunded
// participant is not implicitly re-charged.
func (db *DB) RestoreParticipantWithCapacity(ctx context.Context, bookingID, participantID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	var batchID int64
	err = tx.QueryRowContext(ctx, `SELECT status, batch_id FROM bookings WHERE id = ?`, bookingID).
		Scan(&status, &batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if status == models.StatusCancelled {
		return ErrConflictingState
	}

	if err := reserveCapacity(ctx, tx, batchID, 1); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE booking_participants SET is_cancelled = 0, cancelled_at = NULL
         WHERE id = ? AND booking_id = ? AND is_cancelled = 1`,
		participantID, bookingID)
	if err != nil {
		return fmt.Errorf("failed to restore participant: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM booking_participants WHERE id = ? AND booking_id = ?`,
			participantID, bookingID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflictingState
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit participant restore: %w", err)
	}
	return nil
}

// SetBookingRefund records booking-level refund progress. The refund call
// itself happens outside any transaction.
func (db *DB) SetBookingRefund(ctx context.Context, id int64, status string, amount int64, refundDate *time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET refund_status = ?, refund_amount = ?, refund_date = ?, updated_at = ? WHERE id = ?`,
		status, amount, refundDate, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set booking refund: %w", err)
	}
	return nil
}

func (db *DB) SetParticipantRefund(ctx context.Context, participantID int64, status string, amount int64, refundDate *time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE booking_participants SET refund_status = ?, refund_amount = ?, refund_date = ? WHERE id = ?`,
		status, amount, refundDate, participantID)
	if err != nil {
		return fmt.Errorf("failed to set participant refund: %w", err)
	}
	return nil
}

// ListExpiredPending returns pending_payment bookings whose session closed
// before now, oldest first. The reconciler consumes this.
func (db *DB) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND expires_at < ?
              ORDER BY expires_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.StatusPendingPayment, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBookingsByBatchRange lists bookings whose batch departs inside
// [start, end], for admin reporting and the roster sync.
func (db *DB) ListBookingsByBatchRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + qualifyBookingColumns("b") + `
              FROM bookings b JOIN batches ba ON ba.id = b.batch_id
              WHERE ba.start_date >= ? AND ba.start_date <= ?
              ORDER BY ba.start_date ASC, b.id ASC`
	rows, err := db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings by batch range: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) getParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error) {
	query := `SELECT id, booking_id, name, age, gender, medical_notes,
                     is_cancelled, cancelled_at, refund_status, refund_amount, refund_date
              FROM booking_participants WHERE booking_id = ? ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var orderRef, paymentRef sql.NullString
	var dueDate, lastAttempt, refundDate, cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.UserID, &b.TrekID, &b.BatchID, &b.Participants,
		&b.ContactName, &b.ContactEmail, &b.ContactPhone,
		&b.TotalPrice, &b.PaymentMode, &b.Status,
		&orderRef, &paymentRef, &b.Payment.InitialAmount, &b.Payment.RemainingAmount, &dueDate,
		&b.Session.SessionID, &b.Session.ExpiresAt, &b.Session.PaymentAttempts, &lastAttempt,
		&b.RefundStatus, &b.RefundAmount, &refundDate, &cancelledAt,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	b.Payment.OrderRef = orderRef.String
	b.Payment.PaymentRef = paymentRef.String
	if dueDate.Valid {
		b.Payment.DueDate = &dueDate.Time
	}
	if lastAttempt.Valid {
		b.Session.LastPaymentAttempt = &lastAttempt.Time
	}
	if refundDate.Valid {
		b.RefundDate = &refundDate.Time
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	return &b, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var p models.Participant
	var gender, notes sql.NullString
	var cancelledAt, refundDate sql.NullTime
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Name, &p.Age, &gender, &notes,
		&p.IsCancelled, &cancelledAt, &p.RefundStatus, &p.RefundAmount, &refundDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	p.Gender = gender.String
	p.MedicalNotes = notes.String
	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.Time
	}
	if refundDate.Valid {
		p.RefundDate = &refundDate.Time
	}
	return &p, nil
}

func qualifyBookingColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.trek_id, ` + alias + `.batch_id, ` + alias + `.participants,
       ` + alias + `.contact_name, ` + alias + `.contact_email, ` + alias + `.contact_phone,
       ` + alias + `.total_price, ` + alias + `.payment_mode, ` + alias + `.status,
       ` + alias + `.order_ref, ` + alias + `.payment_ref, ` + alias + `.initial_amount, ` + alias + `.remaining_amount, ` + alias + `.due_date,
       ` + alias + `.session_id, ` + alias + `.expires_at, ` + alias + `.payment_attempts, ` + alias + `.last_payment_attempt,
       ` + alias + `.refund_status, ` + alias + `.refund_amount, ` + alias + `.refund_date, ` + alias + `.cancelled_at,
       ` + alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.version`
}
