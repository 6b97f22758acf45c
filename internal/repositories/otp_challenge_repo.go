package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sproutmarket/guard/internal/database"
	"github.com/sproutmarket/guard/internal/models"
)

// OtpChallengeRepository is the Postgres-backed challenge store. The
// single-use and one-live-challenge-per-pair invariants hold across server
// instances because both are enforced with conditional row updates.
type OtpChallengeRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

// NewOtpChallengeRepository creates a new OtpChallengeRepository
func NewOtpChallengeRepository(db *database.DB) *OtpChallengeRepository {
	return &OtpChallengeRepository{db: db, pool: db.Pool}
}

func scanChallengeRow(row rowScanner) (*models.OtpChallenge, error) {
	var challenge models.OtpChallenge

	err := row.Scan(
		&challenge.VerificationKey, &challenge.Target, &challenge.Purpose,
		&challenge.CodeHash, &challenge.IssuedAt, &challenge.ExpiresAt,
		&challenge.ConsumedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &challenge, nil
}

// Replace atomically consumes any live challenge for the (target, purpose)
// pair and inserts the new one.
func (r *OtpChallengeRepository) Replace(ctx context.Context, challenge *models.OtpChallenge) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Serialize issuance per pair so two concurrent issues cannot both
		// leave a live challenge behind.
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`,
			challenge.Target, string(challenge.Purpose))
		if err != nil {
			return fmt.Errorf("failed to take advisory lock: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE otp_challenges
			SET consumed_at = NOW()
			WHERE target = $1 AND purpose = $2 AND consumed_at IS NULL
		`, challenge.Target, string(challenge.Purpose))
		if err != nil {
			return fmt.Errorf("failed to invalidate prior challenges: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO otp_challenges (verification_key, target, purpose, code_hash, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, challenge.VerificationKey, challenge.Target, string(challenge.Purpose),
			challenge.CodeHash, challenge.IssuedAt, challenge.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert challenge: %w", err)
		}

		return nil
	})
}

// GetByKey retrieves a challenge by its verification key
func (r *OtpChallengeRepository) GetByKey(ctx context.Context, verificationKey string) (*models.OtpChallenge, error) {
	query := `
		SELECT verification_key, target, purpose, code_hash, issued_at, expires_at, consumed_at
		FROM otp_challenges
		WHERE verification_key = $1
	`
	return scanChallengeRow(r.pool.QueryRow(ctx, query, verificationKey))
}

// Consume flips consumed_at exactly once. The WHERE clause makes this a
// compare-and-swap: a concurrent consumer that lost the race affects zero
// rows and is reported as not consumed.
func (r *OtpChallengeRepository) Consume(ctx context.Context, verificationKey string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET consumed_at = NOW()
		WHERE verification_key = $1 AND consumed_at IS NULL
	`, verificationKey)
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// DeleteExpired removes challenges that expired before the given time
func (r *OtpChallengeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}

	return result.RowsAffected(), nil
}
