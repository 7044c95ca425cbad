package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekbook/internal/models"
)

func TestCreateBookingWithCapacity(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 12)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 3)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))
	assert.NotZero(t, booking.ID)
	assert.Equal(t, models.StatusPendingPayment, booking.Status)
	assert.Equal(t, int64(1), booking.Version)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.TotalPrice, got.TotalPrice)
	assert.Len(t, got.Details, 3)
	assert.Equal(t, models.RefundNotApplicable, got.RefundStatus)

	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.CurrentParticipants)
}

func TestCreateBookingCapacityExceeded(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 2)
	ctx := context.Background()

	require.NoError(t, db.CreateBookingWithCapacity(ctx, newTestBooking(trekID, batchID, 2)))

	err := db.CreateBookingWithCapacity(ctx, newTestBooking(trekID, batchID, 1))
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Nothing from the failed attempt may persist.
	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.CurrentParticipants)
}

func TestReserveOnClosedBatch(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	require.NoError(t, db.UpsertBatch(ctx, &models.Batch{
		ID:              batchID,
		TrekID:          trekID,
		StartDate:       time.Now().Add(24 * time.Hour),
		EndDate:         time.Now().Add(48 * time.Hour),
		Price:           500000,
		MaxParticipants: 10,
		Status:          models.BatchClosed,
	}))

	err := db.ReserveCapacity(ctx, batchID, 1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestMarkConfirmed(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))

	require.NoError(t, db.MarkConfirmed(ctx, booking.ID, "order_abc", "pay_xyz"))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, "pay_xyz", got.Payment.PaymentRef)
	assert.Equal(t, int64(2), got.Version)

	// Confirming twice finds no pending row.
	err = db.MarkConfirmed(ctx, booking.ID, "order_abc", "pay_xyz")
	assert.ErrorIs(t, err, ErrConflictingState)

	// Confirmation never changes the ledger.
	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.CurrentParticipants)
}

func TestMarkCompletedRequiresConfirmed(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 1)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))

	assert.ErrorIs(t, db.MarkCompleted(ctx, booking.ID), ErrConflictingState)

	require.NoError(t, db.MarkConfirmed(ctx, booking.ID, "order_abc", "pay_xyz"))
	require.NoError(t, db.MarkCompleted(ctx, booking.ID))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCancelBookingReleasesSeats(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 4)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))

	cancelled, err := db.CancelBookingWithCapacity(ctx, booking.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	for _, p := range cancelled.Details {
		assert.True(t, p.IsCancelled)
	}

	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)

	// Cancelling again must not release seats a second time.
	_, err = db.CancelBookingWithCapacity(ctx, booking.ID, time.Now())
	assert.ErrorIs(t, err, ErrConflictingState)

	batch, err = db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)
}

func TestCancelBookingReleasesOnlyActiveSeats(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 3)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))

	require.NoError(t, db.CancelParticipantWithCapacity(ctx, booking.ID, booking.Details[0].ID, time.Now()))

	_, err := db.CancelBookingWithCapacity(ctx, booking.ID, time.Now())
	require.NoError(t, err)

	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)
}

func TestCancelParticipant(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 3)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))
	pid := booking.Details[1].ID

	require.NoError(t, db.CancelParticipantWithCapacity(ctx, booking.ID, pid, time.Now()))

	batch, err := db.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.CurrentParticipants)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ActiveParticipants())

	// Double cancel is rejected, no double release.
	err = db.CancelParticipantWithCapacity(ctx, booking.ID, pid, time.Now())
	assert.ErrorIs(t, err, ErrConflictingState)

	err = db.CancelParticipantWithCapacity(ctx, booking.ID, 99999, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestoreParticipant(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 3)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 3)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))
	pid := booking.Details[0].ID

	require.NoError(t, db.CancelParticipantWithCapacity(ctx, booking.ID, pid, time.Now()))

	// Seat freed by the cancellation is taken by someone else.
	other := newTestBooking(trekID, batchID, 1)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, other))

	err := db.RestoreParticipantWithCapacity(ctx, booking.ID, pid)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = db.CancelBookingWithCapacity(ctx, other.ID, time.Now())
	require.NoError(t, err)

	require.NoError(t, db.RestoreParticipantWithCapacity(ctx, booking.ID, pid))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ActiveParticipants())

	// Restoring an active participant is a conflict.
	err = db.RestoreParticipantWithCapacity(ctx, booking.ID, pid)
	assert.ErrorIs(t, err, ErrConflictingState)
}

func TestSetRefundFields(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 10)
	ctx := context.Background()

	booking := newTestBooking(trekID, batchID, 2)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, booking))

	refundDate := time.Now()
	require.NoError(t, db.SetBookingRefund(ctx, booking.ID, models.RefundSuccess, 450000, &refundDate))
	require.NoError(t, db.SetParticipantRefund(ctx, booking.Details[0].ID, models.RefundProcessing, 225000, nil))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundSuccess, got.RefundStatus)
	assert.Equal(t, int64(450000), got.RefundAmount)
	require.NotNil(t, got.RefundDate)
	assert.Equal(t, models.RefundProcessing, got.Details[0].RefundStatus)
	assert.Equal(t, int64(225000), got.Details[0].RefundAmount)
}

func TestListExpiredPending(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 20)
	ctx := context.Background()
	now := time.Now()

	expired := newTestBooking(trekID, batchID, 1)
	expired.Session.ExpiresAt = now.Add(-10 * time.Minute)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, expired))

	live := newTestBooking(trekID, batchID, 1)
	live.Session.ExpiresAt = now.Add(20 * time.Minute)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, live))

	confirmedExpired := newTestBooking(trekID, batchID, 1)
	confirmedExpired.Session.ExpiresAt = now.Add(-5 * time.Minute)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, confirmedExpired))
	require.NoError(t, db.MarkConfirmed(ctx, confirmedExpired.ID, "order_abc", "pay_xyz"))

	got, err := db.ListExpiredPending(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, expired.ID, got[0].ID)
}

func TestListUserBookings(t *testing.T) {
	db := setupTestDB(t)
	trekID, batchID := seedCatalog(t, db, 20)
	ctx := context.Background()

	first := newTestBooking(trekID, batchID, 1)
	require.NoError(t, db.CreateBookingWithCapacity(ctx, first))

	other := newTestBooking(trekID, batchID, 1)
	other.UserID = 7
	require.NoError(t, db.CreateBookingWithCapacity(ctx, other))

	got, err := db.ListUserBookings(ctx, 42)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
}

func TestGetBookingNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetBooking(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
