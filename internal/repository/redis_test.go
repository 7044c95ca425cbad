package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekbook/internal/models"
)

func TestRedisSessionRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	t.Run("SaveAndGetSession", func(t *testing.T) {
		record := &models.SessionRecord{
			SessionID: "sess-abc",
			BookingID: 7,
			UserID:    42,
			ExpiresAt: time.Now().Add(30 * time.Minute),
		}

		require.NoError(t, repo.SaveSession(ctx, record, 30*time.Minute))

		got, err := repo.GetSession(ctx, "sess-abc")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(7), got.BookingID)
		assert.Equal(t, int64(42), got.UserID)
	})

	t.Run("GetMissingSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SessionExpires", func(t *testing.T) {
		record := &models.SessionRecord{SessionID: "sess-ttl", BookingID: 8, UserID: 42}
		require.NoError(t, repo.SaveSession(ctx, record, time.Minute))

		s.FastForward(2 * time.Minute)

		got, err := repo.GetSession(ctx, "sess-ttl")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		record := &models.SessionRecord{SessionID: "sess-del", BookingID: 9, UserID: 42}
		require.NoError(t, repo.SaveSession(ctx, record, time.Minute))

		require.NoError(t, repo.DeleteSession(ctx, "sess-del"))

		got, _ := repo.GetSession(ctx, "sess-del")
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(789)
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Window reset opens the limiter again.
		s.FastForward(2 * time.Second)
		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestRedisSessionRepositoryNilClient(t *testing.T) {
	repo := NewRedisSessionRepository(nil)
	ctx := context.Background()

	_, err := repo.GetSession(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, repo.SaveSession(ctx, &models.SessionRecord{SessionID: "x"}, time.Minute))
	assert.Error(t, repo.DeleteSession(ctx, "x"))
}
