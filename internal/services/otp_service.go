package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/otp"
	"github.com/sproutmarket/guard/internal/ratelimit"
	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

// OtpService wraps code issuance and verification with the abuse limits the
// HTTP surface needs: issuance is throttled per target so one address cannot
// be flooded, and verification attempts are throttled per challenge so a code
// cannot be brute forced within its lifetime. A verified login challenge is
// exchanged for the same session token pair password login produces.
type OtpService struct {
	codes    *otp.Service
	accounts AccountRepository
	tm       *auth.TokenManager
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewOtpService creates a new OtpService
func NewOtpService(codes *otp.Service, accounts AccountRepository, tm *auth.TokenManager, limiter *ratelimit.Limiter, logger *slog.Logger, audit *pkglogger.AuditLogger) *OtpService {
	return &OtpService{
		codes:    codes,
		accounts: accounts,
		tm:       tm,
		limiter:  limiter,
		logger:   logger,
		audit:    audit,
	}
}

// Send issues a fresh code for the target and delivers it out-of-band.
// A delivery failure still returns the issue result with
// models.ErrDeliveryFailed so the handler can report both.
func (s *OtpService) Send(ctx context.Context, target string, purpose models.OtpPurpose, ip string) (*otp.IssueResult, error) {
	if !s.limiter.Consume("otp_send:" + target) {
		s.logger.Warn("otp issuance rate limited",
			slog.String("target", pkglogger.SanitizedTarget(target)),
			slog.String("ip_address", ip))
		return nil, models.ErrRateLimited
	}

	return s.codes.Issue(ctx, target, purpose)
}

// Verify checks a submitted code against the challenge identified by the
// verification key. When the challenge was issued for login, a successful
// verification starts a session: the account owning the target is resolved
// and a token pair is returned. Other purposes only confirm possession and
// return a nil auth response.
func (s *OtpService) Verify(ctx context.Context, verificationKey, code, ip string) (*AuthResponse, error) {
	if !s.limiter.Consume("otp_verify:" + verificationKey) {
		s.logger.Warn("otp verification rate limited",
			slog.String("ip_address", ip))
		return nil, models.ErrRateLimited
	}

	result, err := s.codes.Verify(ctx, verificationKey, code)
	if err != nil {
		return nil, err
	}

	if result.Purpose != models.OtpPurposeLogin {
		return nil, nil
	}

	return s.loginVerifiedTarget(ctx, result.Target, ip)
}

// loginVerifiedTarget exchanges a consumed login challenge for a session.
// Code possession alone is not enough: an unknown or disabled account fails
// with the same generic credential error as a wrong password.
func (s *OtpService) loginVerifiedTarget(ctx context.Context, target, ip string) (*AuthResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, target)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Emit(pkglogger.AuditEvent{
				Type:          pkglogger.EventLoginFailed,
				Key:           pkglogger.SanitizedTarget(target),
				IPAddress:     ip,
				Outcome:       "failed",
				FailureReason: "invalid_credentials",
				Metadata:      map[string]string{"method": "otp"},
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.DisabledAt != nil {
		s.audit.Emit(pkglogger.AuditEvent{
			Type:          pkglogger.EventLoginFailed,
			Key:           account.ID,
			IPAddress:     ip,
			Outcome:       "failed",
			FailureReason: "account_disabled",
			Metadata:      map[string]string{"method": "otp"},
		})
		return nil, models.ErrInvalidCredentials
	}

	accessToken, err := s.tm.GenerateAccessToken(account)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(account)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account logged in via otp", slog.String("account_id", account.ID))
	s.audit.Emit(pkglogger.AuditEvent{
		Type:      pkglogger.EventLoginSucceeded,
		Key:       account.ID,
		IPAddress: ip,
		Outcome:   "success",
		Metadata:  map[string]string{"method": "otp"},
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      accountModelToResponse(account),
	}, nil
}
