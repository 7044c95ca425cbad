package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekbook/internal/database"
	"trekbook/internal/events"
	"trekbook/internal/models"
	"trekbook/internal/repository"
)

func setupArchiveEnv(t *testing.T) (*testEnv, *ArchiveService) {
	t.Helper()
	env := setupEnv(t, 10, 30*24*time.Hour)
	logger := zerolog.Nop()
	svc := NewArchiveService(env.db, repository.NewMemorySessionRepository(), events.NewEventBus(), 30*time.Minute, &logger)
	return env, svc
}

func TestArchiveAndRestore(t *testing.T) {
	env, archive := setupArchiveEnv(t)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 2))
	require.NoError(t, err)

	fb, err := archive.Archive(ctx, booking.ID, models.FailurePaymentFailed, "admin:priya")
	require.NoError(t, err)
	assert.Equal(t, "admin:priya", fb.ArchivedBy)

	list, err := archive.List(ctx, models.ArchiveFilter{Reason: models.FailurePaymentFailed})
	require.NoError(t, err)
	require.Len(t, list, 1)

	restored, err := archive.Restore(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, restored.Status)
	assert.Equal(t, booking.TotalPrice, restored.TotalPrice)
	// Fresh session, not the stale one.
	assert.NotEqual(t, booking.Session.SessionID, restored.Session.SessionID)
	assert.True(t, restored.Session.ExpiresAt.After(time.Now()))

	// Archive row consumed.
	_, err = archive.Get(ctx, fb.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestArchiveDefaultsReason(t *testing.T) {
	env, archive := setupArchiveEnv(t)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)

	fb, err := archive.Archive(ctx, booking.ID, "", "admin:priya")
	require.NoError(t, err)
	assert.Equal(t, models.FailureSystemError, fb.FailureReason)
}

func TestArchiveDelete(t *testing.T) {
	env, archive := setupArchiveEnv(t)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 1))
	require.NoError(t, err)
	fb, err := archive.Archive(ctx, booking.ID, models.FailureUserCancelled, "admin:priya")
	require.NoError(t, err)

	require.NoError(t, archive.Delete(ctx, fb.ID))
	assert.ErrorIs(t, archive.Delete(ctx, fb.ID), database.ErrNotFound)
}

func TestExportFailedBookings(t *testing.T) {
	env, archive := setupArchiveEnv(t)
	ctx := context.Background()

	booking, err := env.svc.CreateBooking(ctx, createRequest(env.trekID, env.batchID, 2))
	require.NoError(t, err)
	_, err = archive.Archive(ctx, booking.ID, models.FailureSessionExpired, "reconciler")
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := archive.ExportFailedBookings(ctx, dir, models.ArchiveFilter{})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
