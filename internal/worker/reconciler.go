package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trekbook/internal/metrics"
)

// Sweeper archives pending bookings whose payment session has lapsed.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// Reconciler runs the expiry sweep on a fixed interval.
type Reconciler struct {
	sweeper   Sweeper
	interval  time.Duration
	batchSize int
	logger    *zerolog.Logger
}

func NewReconciler(sweeper Sweeper, interval time.Duration, batchSize int, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reconciler{sweeper: sweeper, interval: interval, batchSize: batchSize, logger: logger}
}

// Start blocks until ctx is done, sweeping every interval. The first sweep
// runs immediately so a restart does not delay reconciliation.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
	defer r.logger.Info().Msg("reconciler stopped")

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	swept, err := r.sweeper.SweepExpired(ctx, time.Now(), r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	metrics.IncSweep(swept)
	if swept > 0 {
		r.logger.Info().Int("swept", swept).Msg("expired bookings archived")
	}
}
