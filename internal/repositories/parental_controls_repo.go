package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sproutmarket/guard/internal/database"
	"github.com/sproutmarket/guard/internal/models"
)

// ParentalControlsRepository handles parental control data access. The guard
// reads through this repository; only parent-facing handlers write.
type ParentalControlsRepository struct {
	pool *pgxpool.Pool
}

// NewParentalControlsRepository creates a new ParentalControlsRepository
func NewParentalControlsRepository(db *database.DB) *ParentalControlsRepository {
	return &ParentalControlsRepository{pool: db.Pool}
}

func scanControlsRow(row rowScanner) (*models.ParentalControls, error) {
	var controls models.ParentalControls
	var start, end int

	err := row.Scan(
		&controls.ChildID, &controls.DailySpendLimit,
		pq.Array(&controls.AllowedCategories),
		&start, &end, &controls.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	controls.TimeRestrictions = models.TimeRestrictions{
		Start: models.TimeOfDay(start),
		End:   models.TimeOfDay(end),
	}
	return &controls, nil
}

// GetByChildID retrieves the controls configured for a child account
func (r *ParentalControlsRepository) GetByChildID(ctx context.Context, childID string) (*models.ParentalControls, error) {
	query := `
		SELECT child_id, daily_spend_limit_cents, allowed_categories,
		       allowed_start_minutes, allowed_end_minutes, updated_at
		FROM parental_controls
		WHERE child_id = $1
	`
	return scanControlsRow(r.pool.QueryRow(ctx, query, childID))
}

// Upsert creates or replaces the controls for a child account
func (r *ParentalControlsRepository) Upsert(ctx context.Context, controls *models.ParentalControls) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO parental_controls
			(child_id, daily_spend_limit_cents, allowed_categories, allowed_start_minutes, allowed_end_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (child_id) DO UPDATE SET
			daily_spend_limit_cents = EXCLUDED.daily_spend_limit_cents,
			allowed_categories = EXCLUDED.allowed_categories,
			allowed_start_minutes = EXCLUDED.allowed_start_minutes,
			allowed_end_minutes = EXCLUDED.allowed_end_minutes,
			updated_at = NOW()
	`, controls.ChildID, controls.DailySpendLimit,
		pq.Array(controls.AllowedCategories),
		int(controls.TimeRestrictions.Start), int(controls.TimeRestrictions.End))
	if err != nil {
		return fmt.Errorf("failed to upsert parental controls: %w", err)
	}

	return nil
}
