package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/ratelimit"
	pkgauth "github.com/sproutmarket/guard/pkg/auth"
	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

// AccountRepository defines the account lookups the auth service needs
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// AuthService handles password login and session token refresh
type AuthService struct {
	accounts AccountRepository
	policy   *pkgauth.CredentialPolicy
	tm       *auth.TokenManager
	limiter  *ratelimit.Limiter
	timing   *auth.TimingDelay
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(accounts AccountRepository, policy *pkgauth.CredentialPolicy, tm *auth.TokenManager, limiter *ratelimit.Limiter, timing *auth.TimingDelay, logger *slog.Logger, audit *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		accounts: accounts,
		policy:   policy,
		tm:       tm,
		limiter:  limiter,
		timing:   timing,
		logger:   logger,
		audit:    audit,
	}
}

// AccountResponse represents an account in the HTTP response
type AccountResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	Account      *AccountResponse `json:"account"`
}

// Login authenticates an account and returns a token pair. All credential
// failures surface as models.ErrInvalidCredentials so a caller cannot tell an
// unknown email from a wrong password, and failure responses are padded to a
// uniform duration.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*AuthResponse, error) {
	start := time.Now()

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		return nil, s.loginFailure(start, "", ip, "invalid_credentials")
	}

	if !s.limiter.Consume("login:" + ip) {
		s.logger.Warn("login rate limited", slog.String("ip_address", ip))
		return nil, models.ErrRateLimited
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.loginFailure(start, "", ip, "invalid_credentials")
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.DisabledAt != nil {
		return nil, s.loginFailure(start, account.ID, ip, "account_disabled")
	}

	if !s.policy.Verify(password, account.PasswordHash) {
		return nil, s.loginFailure(start, account.ID, ip, "invalid_credentials")
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

	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.audit.Emit(pkglogger.AuditEvent{
		Type:      pkglogger.EventLoginSucceeded,
		Key:       account.ID,
		IPAddress: ip,
		Outcome:   "success",
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      accountModelToResponse(account),
	}, nil
}

// RefreshToken exchanges a valid refresh token for a fresh token pair
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "refresh" {
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account by id", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if account.DisabledAt != nil {
		return nil, models.ErrUnauthorized
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

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      accountModelToResponse(account),
	}, nil
}

// loginFailure equalizes the response time, emits the audit event, and
// returns the generic credential error.
func (s *AuthService) loginFailure(start time.Time, accountID, ip, reason string) error {
	s.logger.Info("login failed: invalid credentials")
	s.audit.Emit(pkglogger.AuditEvent{
		Type:          pkglogger.EventLoginFailed,
		Key:           accountID,
		IPAddress:     ip,
		Outcome:       "failed",
		FailureReason: reason,
	})
	s.timing.WaitFrom(start)
	return models.ErrInvalidCredentials
}

func accountModelToResponse(account *models.Account) *AccountResponse {
	return &AccountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		CreatedAt: account.CreatedAt.Format(time.RFC3339),
	}
}
