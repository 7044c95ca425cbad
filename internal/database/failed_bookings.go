package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trekbook/internal/models"
)

const failedBookingColumns = `id, original_booking_id, user_id, trek_id, batch_id, participants,
       contact_name, contact_email, contact_phone,
       total_price, payment_mode, order_ref, payment_ref,
       initial_amount, remaining_amount, session_id, expires_at, payment_attempts,
       failure_reason, original_created_at, archived_at, archived_by, details`

// ArchiveBooking snapshots a live booking into failed_bookings, deletes the
// live row and releases its remaining seats, all in one transaction. The
// booking must not be confirmed or completed.
func (db *DB) ArchiveBooking(ctx context.Context, bookingID int64, reason, archivedBy string, now time.Time) (*models.FailedBooking, error) {
	booking, err := db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusConfirmed || booking.Status == models.StatusCompleted {
		return nil, ErrConflictingState
	}

	details, err := json.Marshal(booking.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode participant details: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO failed_bookings (
                original_booking_id, user_id, trek_id, batch_id, participants,
                contact_name, contact_email, contact_phone,
                total_price, payment_mode, order_ref, payment_ref,
                initial_amount, remaining_amount, session_id, expires_at, payment_attempts,
                failure_reason, original_created_at, archived_at, archived_by, details
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		booking.ID, booking.UserID, booking.TrekID, booking.BatchID, booking.Participants,
		booking.ContactName, booking.ContactEmail, booking.ContactPhone,
		booking.TotalPrice, booking.PaymentMode, booking.Payment.OrderRef, booking.Payment.PaymentRef,
		booking.Payment.InitialAmount, booking.Payment.RemainingAmount,
		booking.Session.SessionID, booking.Session.ExpiresAt, booking.Session.PaymentAttempts,
		reason, booking.CreatedAt, now, archivedBy, string(details),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert archive row: %w", err)
	}
	archiveID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get archive id: %w", err)
	}

	// Guard on status so a booking confirmed between the read and the
	// delete survives.
	del, err := tx.ExecContext(ctx,
		`DELETE FROM bookings WHERE id = ? AND status NOT IN (?, ?)`,
		bookingID, models.StatusConfirmed, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}
	if rows, _ := del.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	// Cancelled bookings already released their seats.
	if booking.Status != models.StatusCancelled {
		if seats := booking.ActiveParticipants(); seats > 0 {
			if err := releaseCapacity(ctx, tx, booking.BatchID, seats); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit archive: %w", err)
	}

	return &models.FailedBooking{
		ID:                archiveID,
		OriginalBookingID: booking.ID,
		UserID:            booking.UserID,
		TrekID:            booking.TrekID,
		BatchID:           booking.BatchID,
		Participants:      booking.Participants,
		ContactName:       booking.ContactName,
		ContactEmail:      booking.ContactEmail,
		ContactPhone:      booking.ContactPhone,
		TotalPrice:        booking.TotalPrice,
		PaymentMode:       booking.PaymentMode,
		Payment:           booking.Payment,
		Session:           booking.Session,
		FailureReason:     reason,
		OriginalCreatedAt: booking.CreatedAt,
		ArchivedAt:        now,
		ArchivedBy:        archivedBy,
		Details:           booking.Details,
	}, nil
}

// RestoreFailedBooking rebuilds a live pending_payment booking from an
// archive row, re-reserving its seats and handing it a fresh session window.
// The archive row is deleted on success.
func (db *DB) RestoreFailedBooking(ctx context.Context, archiveID int64, sessionID string, expiresAt time.Time) (*models.Booking, error) {
	fb, err := db.GetFailedBooking(ctx, archiveID)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	seats := len(fb.Details)
	if seats == 0 {
		seats = fb.Participants
	}
	if err := reserveCapacity(ctx, tx, fb.BatchID, seats); err != nil {
		return nil, err
	}

	now := time.Now()
	query := `INSERT INTO bookings (
                user_id, trek_id, batch_id, participants,
                contact_name, contact_email, contact_phone,
                total_price, payment_mode, status,
                order_ref, initial_amount, remaining_amount,
                session_id, expires_at, refund_status,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	result, err := tx.ExecContext(ctx, query,
		fb.UserID, fb.TrekID, fb.BatchID, fb.Participants,
		fb.ContactName, fb.ContactEmail, fb.ContactPhone,
		fb.TotalPrice, fb.PaymentMode, models.StatusPendingPayment,
		fb.Payment.OrderRef, fb.Payment.InitialAmount, fb.Payment.RemainingAmount,
		sessionID, expiresAt, models.RefundNotApplicable,
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert restored booking: %w", err)
	}
	bookingID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get restored booking id: %w", err)
	}

	for i := range fb.Details {
		p := &fb.Details[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_participants (booking_id, name, age, gender, medical_notes, refund_status)
             VALUES (?, ?, ?, ?, ?, ?)`,
			bookingID, p.Name, p.Age, p.Gender, p.MedicalNotes, models.RefundNotApplicable)
		if err != nil {
			return nil, fmt.Errorf("failed to insert restored participant: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM failed_bookings WHERE id = ?`, archiveID); err != nil {
		return nil, fmt.Errorf("failed to delete archive row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}
	return db.GetBooking(ctx, bookingID)
}

func (db *DB) GetFailedBooking(ctx context.Context, id int64) (*models.FailedBooking, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+failedBookingColumns+` FROM failed_bookings WHERE id = ?`, id)
	return scanFailedBooking(row)
}

// ListFailedBookings returns archive rows matching the filter, newest first.
func (db *DB) ListFailedBookings(ctx context.Context, filter models.ArchiveFilter) ([]*models.FailedBooking, error) {
	query := `SELECT ` + failedBookingColumns + ` FROM failed_bookings WHERE 1=1`
	var args []any
	if filter.Reason != "" {
		query += ` AND failure_reason = ?`
		args = append(args, filter.Reason)
	}
	if !filter.From.IsZero() {
		query += ` AND archived_at >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND archived_at <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY archived_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.FailedBooking
	for rows.Next() {
		fb, err := scanFailedBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// DeleteFailedBooking removes an archive row permanently.
func (db *DB) DeleteFailedBooking(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM failed_bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete failed booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFailedBooking(row rowScanner) (*models.FailedBooking, error) {
	var fb models.FailedBooking
	var orderRef, paymentRef sql.NullString
	var details string
	err := row.Scan(
		&fb.ID, &fb.OriginalBookingID, &fb.UserID, &fb.TrekID, &fb.BatchID, &fb.Participants,
		&fb.ContactName, &fb.ContactEmail, &fb.ContactPhone,
		&fb.TotalPrice, &fb.PaymentMode, &orderRef, &paymentRef,
		&fb.Payment.InitialAmount, &fb.Payment.RemainingAmount,
		&fb.Session.SessionID, &fb.Session.ExpiresAt, &fb.Session.PaymentAttempts,
		&fb.FailureReason, &fb.OriginalCreatedAt, &fb.ArchivedAt, &fb.ArchivedBy, &details,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan failed booking: %w", err)
	}

	fb.Payment.OrderRef = orderRef.String
	fb.Payment.PaymentRef = paymentRef.String
	if details != "" {
		if err := json.Unmarshal([]byte(details), &fb.Details); err != nil {
			return nil, fmt.Errorf("failed to decode participant details: %w", err)
		}
	}
	return &fb, nil
}
