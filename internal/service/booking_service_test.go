package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekbook/internal/database"
	"trekbook/internal/events"
	"trekbook/internal/gateway"
	"trekbook/internal/models"
	"trekbook/internal/repository"
)

type fakeGateway struct {
	mu        sync.Mutex
	orders    int
	refunds   []int64
	orderErr  error
	refundErr error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*models.PaymentOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.orders++
	return &models.PaymentOrder{
		ID:       fmt.Sprintf("order_%d", g.orders),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderRef, paymentRef, signature string) error {
	if signature != "good" {
		return gateway.ErrVerificationFailed
	}
	return nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, paymentRef string, amount int64) (*models.PaymentRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return &models.PaymentRefund{ID: "rfnd_1", PaymentRef: paymentRef, Amount: amount, Status: "processed"}, nil
}

func (g *fakeGateway) refundTotal() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, r := range g.refunds {
		total += r
	}
	return total
}

type fakeNotifier struct {
	mu                    sync.Mutex
	confirmed             int
	cancelled             int
	participantsCancelled int
	archived              int
	refundsFailed         int
}

func (n *fakeNotifier) NotifyBookingConfirmed(*models.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
}

func (n *fakeNotifier) NotifyBookingCancelled(*models.Booking, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}

func (n *fakeNotifier) NotifyParticipantCancelled(*models.Booking, int64, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.participantsCancelled++
}

func (n *fakeNotifier) NotifyBookingArchived(*models.FailedBooking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.archived++
}

func (n *fakeNotifier) NotifyRefundFailed(int64, int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refundsFailed++
}

type testEnv struct {
	db       *database.DB
	gw       *fakeGateway
	nt       *fakeNotifier
	sessions *repository.MemorySessionRepository
	svc      *BookingService
	trekID   int64
	batchID  int64
}

// setupEnv wires a booking service against an in-memory database, a memory
// session store and a fake gateway. The seeded batch departs startIn from
// now with the given capacity.
func setupEnv(t *testing.T, capacity int, startIn time.Duration) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	trek := &models.Trek{
		ID:       1,
		Name:     "Roopkund",
		IsActive: true,
		PartialPayment: models.PartialPaymentPolicy{
			Enabled: true,
			Type:    models.PartialTypePercentage,
			Value:   40,
		},
	}
	require.NoError(t, db.UpsertTrek(ctx, trek))

	batch := &models.Batch{
		ID:              10,
		TrekID:          1,
		StartDate:       time.Now().Add(startIn),
		EndDate:         time.Now().Add(startIn + 5*24*time.Hour),
		Price:           500000,
		MaxParticipants: capacity,
		Status:          models.BatchActive,
	}
	require.NoError(t, db.UpsertBatch(ctx, batch))

	gw := &fakeGateway{}
	nt := &fakeNotifier{}
	sessions := repository.NewMemorySessionRepository()
	svc := NewBookingService(db, sessions, gw, events.NewEventBus(), nt, nil,
		30*time.Minute, 3, "INR", &logger)

	return &testEnv{db: db, gw: gw, nt: nt, sessions: sessions, svc: svc, trekID: 1, batchID: 10}
}

func createRequest(trekID, batchID int64, participants int) *CreateBookingRequest {
	details := make([]ParticipantInput, participants)
	for i := range details {
		details[i] = ParticipantInput{Name: "Traveller", Age: 28}
	}
	return &CreateBookingRequest{
		UserID:       42,
		TrekID:       trekID,
		BatchID:      batchID,
		ContactName:  "Asha",
		ContactPhone: "+919999999999",
		PaymentMode:  models.PaymentModeFull,
		Participants: details,
	}
}

func (e *testEnv) confirmed(t *testing.T, participants int) *models.Booking {
	t.Helper()
	ctx := context.Background()
	booking, err := e.svc.CreateBooking(ctx, createRequest(e.trekID, e.batchID, participants))
	require.NoError(t, err)
	confirmed, err := e.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "good")
	require.NoError(t, err)
	return confirmed
}

func TestCreateBooking(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 3))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPendingPayment, booking.Status)
	assert.Equal(t, int64(1500000), booking.TotalPrice)
	assert.Equal(t, "order_1", booking.Payment.OrderRef)
	assert.NotEmpty(t, booking.Session.SessionID)

	// Session mirrored into the store.
	record, err := env.sessions.GetSession(ctx, booking.Session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, booking.ID, record.BookingID)

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.CurrentParticipants)
}

func TestCreateBookingGatewayDown(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	env.gw.orderErr = gateway.ErrGatewayUnavailable
	ctx := context.Background()

	// Booking still opens; the order ref stays empty.
	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)
	assert.Empty(t, booking.Payment.OrderRef)
}

func TestCreateBookingRateLimited(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	env.svc.WithRateLimit(2, time.Minute)
	ctx := context.Background()

	_, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)
	_, err = env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)
	_, err = env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	assert.ErrorIs(t, err, ErrRateLimited)

	// Another user keeps their own budget.
	other := createRequest(env.trekID, env.batchID, 1)
	other.UserID = 43
	_, err = env.svc.CreateBooking(ctx, other)
	require.NoError(t, err)
}

func TestCreateBookingValidation(t *testing.T) {
	env := setupEnv(t, 2, 30*24*time.Hour)
	ctx := context.Background()

	_, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 3))
	assert.ErrorIs(t, err, database.ErrCapacityExceeded)

	req := createRequest(env.trekID, env.batchID, 1)
	req.Participants = nil
	_, err = env.svc.CreateBooking(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = env.svc.CreateBooking(ctx, createRequest(env.trekID, 999, 1))
	assert.ErrorIs(t, err, database.ErrNotFound)

	// Close the batch.
	require.NoError(t, env.db.UpsertBatch(ctx, &models.Batch{
		ID: env.batchID, TrekID: env.trekID,
		StartDate: time.Now().Add(24 * time.Hour), EndDate: time.Now().Add(48 * time.Hour),
		Price: 500000, MaxParticipants: 2, Status: models.BatchClosed,
	}))
	_, err = env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	assert.ErrorIs(t, err, database.ErrBatchClosed)
}

func TestConfirmPayment(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 2))
	require.NoError(t, err)

	confirmed, err := env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "pay_1", confirmed.Payment.PaymentRef)

	// Session is gone after confirmation.
	record, err := env.sessions.GetSession(ctx, booking.Session.SessionID)
	require.NoError(t, err)
	assert.Nil(t, record)

	// Re-confirming the same payment is idempotent.
	again, err := env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "good")
	require.NoError(t, err)
	assert.Equal(t, confirmed.ID, again.ID)

	// A different payment against a confirmed booking is a conflict.
	_, err = env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_2", "good")
	assert.ErrorIs(t, err, database.ErrConflictingState)
}

func TestConfirmPaymentBadSignature(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	_, err = env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "forged")
	assert.ErrorIs(t, err, gateway.ErrVerificationFailed)

	// Attempt recorded, booking still pending.
	got, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)
	assert.Equal(t, 1, got.Session.PaymentAttempts)
}

func TestConfirmPaymentMismatchedOrder(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	_, err = env.svc.ConfirmPayment(ctx, booking.ID, "order_spoofed", "pay_1", "good")
	assert.ErrorIs(t, err, gateway.ErrVerificationFailed)
}

// A booking that opened while the gateway was down has no order ref. It must
// never confirm against a caller-supplied order; confirming binds a fresh
// order of the right amount first.
func TestConfirmPaymentBindsOrderWhenMissing(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	env.gw.orderErr = gateway.ErrGatewayUnavailable
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 2))
	require.NoError(t, err)
	require.Empty(t, booking.Payment.OrderRef)

	// Gateway still down: no order can be bound yet.
	_, err = env.svc.ConfirmPayment(ctx, booking.ID, "order_cheap", "pay_tiny", "good")
	assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)

	env.gw.orderErr = nil

	// A validly signed payment for a foreign order is rejected; the attempt
	// binds an order the caller can fetch and pay.
	_, err = env.svc.ConfirmPayment(ctx, booking.ID, "order_cheap", "pay_tiny", "good")
	assert.ErrorIs(t, err, gateway.ErrVerificationFailed)

	bound, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bound.Payment.OrderRef)
	assert.Equal(t, models.StatusPendingPayment, bound.Status)

	confirmed, err := env.svc.ConfirmPayment(ctx, booking.ID, bound.Payment.OrderRef, "pay_1", "good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
}

func TestConfirmPaymentAttemptsExhausted(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "forged")
		assert.ErrorIs(t, err, gateway.ErrVerificationFailed)
	}

	_, err = env.svc.ConfirmPayment(ctx, booking.ID, booking.Payment.OrderRef, "pay_1", "good")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestCancelConfirmedBookingRefundsByTier(t *testing.T) {
	// Departure 30 days out: 90% tier.
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 2)
	paid := booking.Payment.InitialAmount

	cancelled, err := env.svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.RefundSuccess, cancelled.RefundStatus)

	expected := (paid*90 + 50) / 100
	assert.Equal(t, expected, cancelled.RefundAmount)
	assert.Equal(t, expected, env.gw.refundTotal())

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)
}

func TestCancelInsideNoRefundWindow(t *testing.T) {
	// Departure in 2 days: 0% tier, nothing refunded.
	env := setupEnv(t, 10, 2*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 1)

	cancelled, err := env.svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.RefundNotApplicable, cancelled.RefundStatus)
	assert.Empty(t, env.gw.refunds)
}

func TestCancelPendingBookingNoRefund(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	cancelled, err := env.svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundNotApplicable, cancelled.RefundStatus)
	assert.Empty(t, env.gw.refunds)
}

func TestCancelBookingRefundFailure(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 1)
	env.gw.refundErr = gateway.ErrGatewayUnavailable

	cancelled, err := env.svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)

	// Cancellation sticks even though the refund failed.
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.RefundFailed, cancelled.RefundStatus)

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)
}

func TestCancelParticipantRefundsShare(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 3)
	paid := booking.Payment.InitialAmount
	pid := booking.Details[0].ID

	updated, err := env.svc.CancelParticipant(ctx, booking.ID, pid)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ActiveParticipants())

	share := paid / 3
	expected := (share*90 + 50) / 100
	assert.Equal(t, expected, env.gw.refundTotal())
	assert.Equal(t, models.RefundSuccess, updated.Details[0].RefundStatus)
	assert.Equal(t, expected, updated.Details[0].RefundAmount)

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.CurrentParticipants)
}

// Ops gets pinged on confirmation and on both cancellation flavours.
func TestCancellationsNotifyOps(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 2)
	assert.Equal(t, 1, env.nt.confirmed)

	_, err := env.svc.CancelParticipant(ctx, booking.ID, booking.Details[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.nt.participantsCancelled)

	_, err = env.svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.nt.cancelled)
}

func TestRefundCapAcrossCancellations(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 2)

	_, err := env.svc.CancelParticipant(ctx, booking.ID, booking.Details[0].ID)
	require.NoError(t, err)
	_, err = env.svc.CancelParticipant(ctx, booking.ID, booking.Details[1].ID)
	require.NoError(t, err)

	final, err := env.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, final.RefundedTotal(), final.TotalPrice)
	assert.LessOrEqual(t, env.gw.refundTotal(), final.TotalPrice)
}

func TestRestoreParticipant(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 2)
	pid := booking.Details[1].ID

	_, err := env.svc.CancelParticipant(ctx, booking.ID, pid)
	require.NoError(t, err)

	restored, err := env.svc.RestoreParticipant(ctx, booking.ID, pid)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.ActiveParticipants())

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.CurrentParticipants)
}

func TestCompleteBooking(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	booking := env.confirmed(t, 1)

	// The batch has not run yet.
	_, err := env.svc.CompleteBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrBatchNotFinished)

	require.NoError(t, env.db.UpsertBatch(ctx, &models.Batch{
		ID: env.batchID, TrekID: env.trekID,
		StartDate: time.Now().Add(-7 * 24 * time.Hour), EndDate: time.Now().Add(-24 * time.Hour),
		Price: 500000, MaxParticipants: 10, Status: models.BatchActive,
	}))

	completed, err := env.svc.CompleteBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	// Only confirmed bookings complete.
	_, err = env.svc.CompleteBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, database.ErrConflictingState)
}

func TestSweepExpired(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	first, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 2))
	require.NoError(t, err)
	_, err = env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	// Sweep with a horizon past both payment windows.
	swept, err := env.svc.SweepExpired(ctx, first.Session.ExpiresAt.Add(time.Hour), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	archived, err := env.db.ListFailedBookings(ctx, models.ArchiveFilter{Reason: models.FailureSessionExpired})
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	batch, err := env.db.GetBatch(ctx, env.batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.CurrentParticipants)
}

func TestSweepSkipsConfirmed(t *testing.T) {
	env := setupEnv(t, 10, 30*24*time.Hour)
	ctx := context.Background()

	confirmed := env.confirmed(t, 1)
	pending, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	swept, err := env.svc.SweepExpired(ctx, pending.Session.ExpiresAt.Add(time.Minute), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := env.db.GetBooking(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}
