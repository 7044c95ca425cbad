package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"trekbook/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCatalog(t *testing.T, db *DB, maxParticipants int) (trekID, batchID int64) {
	t.Helper()
	ctx := context.Background()

	trek := &models.Trek{
		ID:           1,
		Name:         "Kedarkantha",
		Region:       "Uttarakhand",
		DurationDays: 5,
		IsActive:     true,
	}
	require.NoError(t, db.UpsertTrek(ctx, trek))

	batch := &models.Batch{
		ID:              10,
		TrekID:          trek.ID,
		StartDate:       time.Now().Add(10 * 24 * time.Hour),
		EndDate:         time.Now().Add(15 * 24 * time.Hour),
		Price:           500000,
		MaxParticipants: maxParticipants,
		Status:          models.BatchActive,
	}
	require.NoError(t, db.UpsertBatch(ctx, batch))
	return trek.ID, batch.ID
}

func newTestBooking(trekID, batchID int64, participants int) *models.Booking {
	details := make([]models.Participant, participants)
	for i := range details {
		details[i] = models.Participant{Name: "Traveller", Age: 30}
	}
	return &models.Booking{
		UserID:       42,
		TrekID:       trekID,
		BatchID:      batchID,
		Participants: participants,
		ContactName:  "Asha",
		ContactEmail: "asha@example.com",
		ContactPhone: "+919999999999",
		TotalPrice:   int64(participants) * 500000,
		PaymentMode:  models.PaymentModeFull,
		Payment: models.PaymentDetails{
			InitialAmount: int64(participants) * 500000,
		},
		Session: models.BookingSession{
			SessionID: uuid.NewString(),
			ExpiresAt: time.Now().Add(models.DefaultSessionWindow),
		},
		Details: details,
	}
}
