package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"trekbook/internal/domain"
	"trekbook/internal/models"
)

// FailoverSessionRepository routes to the primary store until it fails,
// then serves from the fallback and probes the primary once a minute.
type FailoverSessionRepository struct {
	primary  domain.SessionStore
	fallback domain.SessionStore
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionStore, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary session store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// shouldProbe reports whether enough time has passed to retry the primary.
func (r *FailoverSessionRepository) shouldProbe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) < time.Minute {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, record *models.SessionRecord, ttl time.Duration) error {
	if !r.isDown.Load() {
		if err := r.primary.SaveSession(ctx, record, ttl); err == nil {
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.SaveSession(ctx, record, ttl)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	if !r.isDown.Load() {
		record, err := r.primary.GetSession(ctx, sessionID)
		if err == nil {
			return record, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		record, err := r.primary.GetSession(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			return record, nil
		}
	}
	return r.fallback.GetSession(ctx, sessionID)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		if err := r.primary.DeleteSession(ctx, sessionID); err == nil {
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.DeleteSession(ctx, sessionID)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
