package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/ratelimit"
	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

// TotpSecretStore persists authenticator secrets
type TotpSecretStore interface {
	Create(ctx context.Context, secret *models.TotpSecret) error
	GetByAccountID(ctx context.Context, accountID string) (*models.TotpSecret, error)
	MarkConfirmed(ctx context.Context, accountID string) error
	Delete(ctx context.Context, accountID string) error
}

// TotpService handles authenticator-app enrollment and verification. An
// enrollment becomes active on its first successful verification; until then
// re-enrolling simply replaces the pending secret.
type TotpService struct {
	secrets TotpSecretStore
	manager *auth.TOTPManager
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
}

// NewTotpService creates a new TotpService
func NewTotpService(secrets TotpSecretStore, manager *auth.TOTPManager, limiter *ratelimit.Limiter, logger *slog.Logger, audit *pkglogger.AuditLogger) *TotpService {
	return &TotpService{
		secrets: secrets,
		manager: manager,
		limiter: limiter,
		logger:  logger,
		audit:   audit,
	}
}

// Enroll generates a fresh secret for the account and returns the material
// the user needs to add it to an authenticator app. A confirmed enrollment
// must be revoked before a new one can start.
func (s *TotpService) Enroll(ctx context.Context, accountID, accountName string) (*auth.Enrollment, error) {
	existing, err := s.secrets.GetByAccountID(ctx, accountID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing totp secret",
			slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if existing != nil {
		if existing.Confirmed {
			return nil, models.ErrConflict
		}
		// Pending enrollment restarted; the unverified secret is discarded.
		if err := s.secrets.Delete(ctx, accountID); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to discard pending totp secret",
				slog.String("account_id", accountID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	enrollment, err := s.manager.GenerateEnrollment(accountName)
	if err != nil {
		s.logger.Error("failed to generate totp enrollment",
			slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.secrets.Create(ctx, &models.TotpSecret{
		AccountID: accountID,
		Secret:    enrollment.Secret,
	}); err != nil {
		s.logger.Error("failed to store totp secret",
			slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("totp enrollment started", slog.String("account_id", accountID))
	return enrollment, nil
}

// Verify checks a submitted authenticator code. The first successful
// verification confirms a pending enrollment.
func (s *TotpService) Verify(ctx context.Context, accountID, code string) error {
	if !s.limiter.Consume("totp_verify:" + accountID) {
		s.logger.Warn("totp verification rate limited", slog.String("account_id", accountID))
		return models.ErrRateLimited
	}

	secret, err := s.secrets.GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTotpNotEnrolled
		}
		s.logger.Error("failed to load totp secret",
			slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	valid, err := s.manager.Validate(secret.Secret, code)
	if err != nil {
		s.logger.Error("failed to validate totp code",
			slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		s.audit.Emit(pkglogger.AuditEvent{
			Type:          pkglogger.EventTotpVerifyFailed,
			Key:           accountID,
			Outcome:       "failed",
			FailureReason: "mismatch",
		})
		return models.ErrTotpMismatch
	}

	if !secret.Confirmed {
		if err := s.secrets.MarkConfirmed(ctx, accountID); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to confirm totp enrollment",
				slog.String("account_id", accountID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		s.logger.Info("totp enrollment confirmed", slog.String("account_id", accountID))
	}

	return nil
}

// Revoke removes the account's enrollment entirely
func (s *TotpService) Revoke(ctx context.Context, accountID string) error {
	err := s.secrets.Delete(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTotpNotEnrolled
		}
		s.logger.Error("failed to revoke totp enrollment",
			slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("totp enrollment revoked", slog.String("account_id", accountID))
	return nil
}
