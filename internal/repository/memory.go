package repository

import (
	"context"
	"sync"
	"time"

	"trekbook/internal/models"
)

// MemorySessionRepository is the in-process fallback used when redis is
// unreachable. Expiry is enforced lazily on read.
type MemorySessionRepository struct {
	sessions   sync.Map
	rateLimits sync.Map
}

type sessionEntry struct {
	record    *models.SessionRecord
	expiresAt time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{}
}

func (r *MemorySessionRepository) SaveSession(ctx context.Context, record *models.SessionRecord, ttl time.Duration) error {
	r.sessions.Store(record.SessionID, &sessionEntry{
		record:    record,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	val, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(*sessionEntry)
	if time.Now().After(entry.expiresAt) {
		r.sessions.Delete(sessionID)
		return nil, nil
	}
	return entry.record, nil
}

func (r *MemorySessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	r.sessions.Delete(sessionID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(userID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(userID, entry)
	return entry.count <= limit, nil
}
