package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sproutmarket/guard/internal/database"
	"github.com/sproutmarket/guard/internal/models"
)

// TotpSecretRepository handles authenticator secret data access
type TotpSecretRepository struct {
	pool *pgxpool.Pool
}

// NewTotpSecretRepository creates a new TotpSecretRepository
func NewTotpSecretRepository(db *database.DB) *TotpSecretRepository {
	return &TotpSecretRepository{pool: db.Pool}
}

func scanTotpSecretRow(row rowScanner) (*models.TotpSecret, error) {
	var secret models.TotpSecret

	err := row.Scan(
		&secret.AccountID, &secret.Secret, &secret.Confirmed,
		&secret.CreatedAt, &secret.ConfirmedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &secret, nil
}

// Create stores a fresh unconfirmed secret. Re-enrollment while a prior
// secret exists is a conflict; the caller must revoke first.
func (r *TotpSecretRepository) Create(ctx context.Context, secret *models.TotpSecret) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO totp_secrets (account_id, secret, confirmed)
		VALUES ($1, $2, FALSE)
	`, secret.AccountID, secret.Secret)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// GetByAccountID retrieves the secret for an account
func (r *TotpSecretRepository) GetByAccountID(ctx context.Context, accountID string) (*models.TotpSecret, error) {
	query := `
		SELECT account_id, secret, confirmed, created_at, confirmed_at
		FROM totp_secrets
		WHERE account_id = $1
	`
	return scanTotpSecretRow(r.pool.QueryRow(ctx, query, accountID))
}

// MarkConfirmed records the first successful verification
func (r *TotpSecretRepository) MarkConfirmed(ctx context.Context, accountID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE totp_secrets
		SET confirmed = TRUE, confirmed_at = NOW()
		WHERE account_id = $1 AND confirmed = FALSE
	`, accountID)
	if err != nil {
		return fmt.Errorf("failed to confirm totp secret: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete revokes the secret; the account must re-enroll afterwards
func (r *TotpSecretRepository) Delete(ctx context.Context, accountID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM totp_secrets WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete totp secret: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
