package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sproutmarket/guard/internal/database"
)

// SpendRepository tracks cumulative per-day spend per child. The reservation
// is a single conditional upsert, so concurrent reservations against the same
// counter serialize on the row and at most one can push the total past the
// limit's remaining headroom.
type SpendRepository struct {
	pool *pgxpool.Pool
}

// NewSpendRepository creates a new SpendRepository
func NewSpendRepository(db *database.DB) *SpendRepository {
	return &SpendRepository{pool: db.Pool}
}

// ReserveSpend adds amount to the child's counter for the day only when the
// result stays within limit. Returns whether the reservation was admitted and
// the cumulative spend after the call.
func (r *SpendRepository) ReserveSpend(ctx context.Context, childID string, day time.Time, amount, limit int64) (bool, int64, error) {
	dayKey := day.Format("2006-01-02")

	var total int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO daily_spend (child_id, day, spent_cents)
		SELECT $1, $2, $3
		WHERE $3 <= $4
		ON CONFLICT (child_id, day) DO UPDATE
		SET spent_cents = daily_spend.spent_cents + EXCLUDED.spent_cents
		WHERE daily_spend.spent_cents + EXCLUDED.spent_cents <= $4
		RETURNING spent_cents
	`, childID, dayKey, amount, limit).Scan(&total)
	if err != nil {
		// No row returned means either the INSERT predicate or the DO UPDATE
		// predicate rejected the reservation.
		if errors.Is(err, pgx.ErrNoRows) {
			current, lookupErr := r.spentOn(ctx, childID, dayKey)
			if lookupErr != nil {
				return false, 0, lookupErr
			}
			return false, current, nil
		}
		return false, 0, fmt.Errorf("failed to reserve spend: %w", err)
	}

	return true, total, nil
}

// ReleaseSpend undoes a prior reservation. The floor at zero keeps a stray
// double release from creating negative budget.
func (r *SpendRepository) ReleaseSpend(ctx context.Context, childID string, day time.Time, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE daily_spend
		SET spent_cents = GREATEST(spent_cents - $3, 0)
		WHERE child_id = $1 AND day = $2
	`, childID, day.Format("2006-01-02"), amount)
	if err != nil {
		return fmt.Errorf("failed to release spend: %w", err)
	}

	return nil
}

func (r *SpendRepository) spentOn(ctx context.Context, childID, dayKey string) (int64, error) {
	var current int64
	err := r.pool.QueryRow(ctx,
		`SELECT spent_cents FROM daily_spend WHERE child_id = $1 AND day = $2`,
		childID, dayKey).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read spend: %w", err)
	}

	return current, nil
}

// DeleteBefore removes spend counters for days earlier than the given time
func (r *SpendRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM daily_spend WHERE day < $1`, before.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old spend counters: %w", err)
	}

	return result.RowsAffected(), nil
}
