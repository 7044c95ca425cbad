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

// execer lets the conditional ledger updates run against either the DB or
// an open transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertTrek inserts or updates a catalog trek. Add-ons and coupons are
// stored as JSON.
func (db *DB) UpsertTrek(ctx context.Context, trek *models.Trek) error {
	addOns, err := json.Marshal(trek.AddOns)
	if err != nil {
		return fmt.Errorf("failed to encode add-ons: %w", err)
	}
	coupons, err := json.Marshal(trek.Coupons)
	if err != nil {
		return fmt.Errorf("failed to encode coupons: %w", err)
	}

	query := `INSERT INTO treks (id, name, region, duration_days, is_active,
                partial_enabled, partial_type, partial_value, tax_percent, add_ons, coupons, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                region = excluded.region,
                duration_days = excluded.duration_days,
                is_active = excluded.is_active,
                partial_enabled = excluded.partial_enabled,
                partial_type = excluded.partial_type,
                partial_value = excluded.partial_value,
                tax_percent = excluded.tax_percent,
                add_ons = excluded.add_ons,
                coupons = excluded.coupons,
                updated_at = excluded.updated_at`

	_, err = db.ExecContext(ctx, query,
		trek.ID, trek.Name, trek.Region, trek.DurationDays, trek.IsActive,
		trek.PartialPayment.Enabled, trek.PartialPayment.Type, trek.PartialPayment.Value,
		trek.TaxPercent, string(addOns), string(coupons), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trek: %w", err)
	}
	return nil
}

// UpsertBatch inserts or updates a scheduled batch. The capacity counter is
// deliberately left alone on update so live reservations survive catalog
// reloads.
func (db *DB) UpsertBatch(ctx context.Context, batch *models.Batch) error {
	query := `INSERT INTO batches (id, trek_id, start_date, end_date, price,
                max_participants, current_participants, status, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                trek_id = excluded.trek_id,
                start_date = excluded.start_date,
                end_date = excluded.end_date,
                price = excluded.price,
                max_participants = excluded.max_participants,
                status = excluded.status,
                updated_at = excluded.updated_at`

	status := batch.Status
	if status == "" {
		status = models.BatchActive
	}
	_, err := db.ExecContext(ctx, query,
		batch.ID, batch.TrekID, batch.StartDate, batch.EndDate, batch.Price,
		batch.MaxParticipants, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}
	return nil
}

func (db *DB) GetTrek(ctx context.Context, id int64) (*models.Trek, error) {
	query := `SELECT id, name, region, duration_days, is_active,
                     partial_enabled, partial_type, partial_value, tax_percent, add_ons, coupons
              FROM treks WHERE id = ?`

	var trek models.Trek
	var partialType sql.NullString
	var addOns, coupons sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(
		&trek.ID, &trek.Name, &trek.Region, &trek.DurationDays, &trek.IsActive,
		&trek.PartialPayment.Enabled, &partialType, &trek.PartialPayment.Value,
		&trek.TaxPercent, &addOns, &coupons,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trek: %w", err)
	}

	trek.PartialPayment.Type = partialType.String
	if addOns.Valid && addOns.String != "" {
		if err := json.Unmarshal([]byte(addOns.String), &trek.AddOns); err != nil {
			return nil, fmt.Errorf("failed to decode add-ons: %w", err)
		}
	}
	if coupons.Valid && coupons.String != "" {
		if err := json.Unmarshal([]byte(coupons.String), &trek.Coupons); err != nil {
			return nil, fmt.Errorf("failed to decode coupons: %w", err)
		}
	}
	return &trek, nil
}

func (db *DB) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	query := `SELECT id, trek_id, start_date, end_date, price,
                     max_participants, current_participants, status
              FROM batches WHERE id = ?`

	var b models.Batch
	err := db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.TrekID, &b.StartDate, &b.EndDate, &b.Price,
		&b.MaxParticipants, &b.CurrentParticipants, &b.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// ReserveCapacity atomically takes n seats on a batch. The UPDATE only
// matches when the post-mutation counter stays within the ledger bounds and
// the batch is active; zero affected rows maps to ErrCapacityExceeded or
// ErrBatchClosed. Never call this while holding a gateway call open.
func (db *DB) ReserveCapacity(ctx context.Context, batchID int64, n int) error {
	return reserveCapacity(ctx, db.DB, batchID, n)
}

// ReleaseCapacity atomically returns n seats to a batch. Zero affected rows
// means the counter would go negative, which indicates ledger corruption.
func (db *DB) ReleaseCapacity(ctx context.Context, batchID int64, n int) error {
	return releaseCapacity(ctx, db.DB, batchID, n)
}

func reserveCapacity(ctx context.Context, ex execer, batchID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid seat count: %d", n)
	}
	query := `UPDATE batches
              SET current_participants = current_participants + ?, updated_at = ?
              WHERE id = ? AND status = ?
                AND current_participants + ? <= max_participants`
	result, err := ex.ExecContext(ctx, query, n, time.Now(), batchID, models.BatchActive, n)
	if err != nil {
		return fmt.Errorf("failed to reserve capacity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCapacityExceeded
	}
	return nil
}

func releaseCapacity(ctx context.Context, ex execer, batchID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid seat count: %d", n)
	}
	query := `UPDATE batches
              SET current_participants = current_participants - ?, updated_at = ?
              WHERE id = ? AND current_participants - ? >= 0`
	result, err := ex.ExecContext(ctx, query, n, time.Now(), batchID, n)
	if err != nil {
		return fmt.Errorf("failed to release capacity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCapacityExceeded
	}
	return nil
}

// GetBatchAvailability reads the current ledger counters for one batch.
func (db *DB) GetBatchAvailability(ctx context.Context, batchID int64) (*models.Availability, error) {
	b, err := db.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &models.Availability{
		BatchID:   b.ID,
		TrekID:    b.TrekID,
		StartDate: b.StartDate,
		Booked:    b.CurrentParticipants,
		Available: b.Remaining(),
		Total:     b.MaxParticipants,
	}, nil
}

// GetTrekAvailability lists availability for all batches of a trek, soonest
// first.
func (db *DB) GetTrekAvailability(ctx context.Context, trekID int64) ([]*models.Availability, error) {
	query := `SELECT id, trek_id, start_date, max_participants, current_participants
              FROM batches WHERE trek_id = ? ORDER BY start_date ASC`
	rows, err := db.QueryContext(ctx, query, trekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch availability: %w", err)
	}
	defer rows.Close()

	var out []*models.Availability
	for rows.Next() {
		var a models.Availability
		var max, cur int
		if err := rows.Scan(&a.BatchID, &a.TrekID, &a.StartDate, &max, &cur); err != nil {
			return nil, fmt.Errorf("failed to scan batch availability: %w", err)
		}
		a.Booked = cur
		a.Total = max
		a.Available = max - cur
		if a.Available < 0 {
			a.Available = 0
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
