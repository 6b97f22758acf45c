package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/pkg/logger"
)

// Sender delivers a plaintext code out-of-band (SMS or email gateway).
// Implementations are treated as at-least-once but not guaranteed.
type Sender interface {
	SendCode(ctx context.Context, target, code string) error
}

// ChallengeStore persists OTP challenges. Consume must be compare-and-swap:
// of any number of concurrent calls for the same unconsumed challenge, exactly
// one returns true.
type ChallengeStore interface {
	// Replace invalidates any live challenge for the (target, purpose) pair
	// and stores the new one, so at most one code per pair is ever valid.
	Replace(ctx context.Context, challenge *models.OtpChallenge) error

	GetByKey(ctx context.Context, verificationKey string) (*models.OtpChallenge, error)

	// Consume marks the challenge consumed and reports whether this call was
	// the one that flipped it.
	Consume(ctx context.Context, verificationKey string) (bool, error)

	// DeleteExpired removes challenges that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Config holds OTP issuance parameters.
type Config struct {
	CodeLength  int           // 4-6 digits
	Expiry      time.Duration // challenge lifetime
	SendTimeout time.Duration // upper bound on the delivery call
}

// IssueResult is returned to the caller after a challenge is created. The
// plaintext code travels only through the Sender, never back to the caller.
type IssueResult struct {
	VerificationKey string    `json:"verification_key"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// VerifyResult identifies the challenge that was just consumed, so the caller
// knows which target proved possession and for what purpose.
type VerifyResult struct {
	Target  string
	Purpose models.OtpPurpose
}

// Service issues and verifies one-time passcodes.
type Service struct {
	store  ChallengeStore
	sender Sender
	cfg    Config
	logger *slog.Logger
	audit  *logger.AuditLogger
}

// NewService creates an OTP service.
func NewService(store ChallengeStore, sender Sender, cfg Config, log *slog.Logger, audit *logger.AuditLogger) *Service {
	return &Service{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: log,
		audit:  audit,
	}
}

// Issue creates a challenge for the target and purpose and sends the code
// out-of-band. Issuing invalidates any prior live challenge for the same
// (target, purpose) pair. A delivery failure is reported as
// models.ErrDeliveryFailed alongside a usable result: the challenge stays
// valid so the caller may retry delivery or the user may still receive a
// delayed message.
func (s *Service) Issue(ctx context.Context, target string, purpose models.OtpPurpose) (*IssueResult, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("%w: unknown otp purpose %q", models.ErrBadRequest, purpose)
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		s.logger.Error("failed to generate otp code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	challenge := &models.OtpChallenge{
		VerificationKey: uuid.New().String(),
		Target:          target,
		Purpose:         purpose,
		CodeHash:        hashCode(challengeSalt(target, purpose), code),
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.cfg.Expiry),
	}

	if err := s.store.Replace(ctx, challenge); err != nil {
		s.logger.Error("failed to store otp challenge",
			slog.String("target", logger.SanitizedTarget(target)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &IssueResult{
		VerificationKey: challenge.VerificationKey,
		ExpiresAt:       challenge.ExpiresAt,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if err := s.sender.SendCode(sendCtx, target, code); err != nil {
		s.logger.Warn("otp delivery failed",
			slog.String("target", logger.SanitizedTarget(target)),
			slog.Any("error", err))
		s.audit.Emit(logger.AuditEvent{
			Type:          logger.EventDeliveryFailed,
			Key:           logger.SanitizedTarget(target),
			Outcome:       "failed",
			FailureReason: "delivery_error",
		})
		return result, models.ErrDeliveryFailed
	}

	s.audit.Emit(logger.AuditEvent{
		Type:    logger.EventOtpIssued,
		Key:     logger.SanitizedTarget(target),
		Outcome: "issued",
	})

	return result, nil
}

// Verify checks the submitted code against the challenge identified by
// verificationKey. Failure outcomes are models.ErrOtpExpired,
// models.ErrOtpAlreadyConsumed, or models.ErrOtpMismatch; on success the
// consumed challenge's target and purpose are returned. At most one
// concurrent Verify for the same challenge can succeed.
func (s *Service) Verify(ctx context.Context, verificationKey, code string) (*VerifyResult, error) {
	challenge, err := s.store.GetByKey(ctx, verificationKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Superseded by a newer code or already cleaned up; either way
			// the key no longer identifies a live challenge.
			return nil, models.ErrOtpExpired
		}
		s.logger.Error("failed to load otp challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if challenge.IsExpired() {
		s.emitVerifyFailure(challenge, "expired")
		return nil, models.ErrOtpExpired
	}

	if challenge.IsConsumed() {
		s.emitVerifyFailure(challenge, "already_consumed")
		return nil, models.ErrOtpAlreadyConsumed
	}

	submitted := hashCode(challengeSalt(challenge.Target, challenge.Purpose), code)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) != 1 {
		s.emitVerifyFailure(challenge, "mismatch")
		return nil, models.ErrOtpMismatch
	}

	consumed, err := s.store.Consume(ctx, verificationKey)
	if err != nil {
		s.logger.Error("failed to consume otp challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !consumed {
		// A concurrent verify got there first.
		s.emitVerifyFailure(challenge, "already_consumed")
		return nil, models.ErrOtpAlreadyConsumed
	}

	return &VerifyResult{Target: challenge.Target, Purpose: challenge.Purpose}, nil
}

func (s *Service) emitVerifyFailure(challenge *models.OtpChallenge, reason string) {
	s.audit.Emit(logger.AuditEvent{
		Type:          logger.EventOtpVerifyFailed,
		Key:           logger.SanitizedTarget(challenge.Target),
		Outcome:       "failed",
		FailureReason: reason,
	})
}

// generateCode produces a zero-padded numeric code of the given length from a
// cryptographically secure source.
func generateCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to read random: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// hashCode returns the stored form of a code. Codes are never persisted or
// logged in plaintext.
func hashCode(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return hex.EncodeToString(sum[:])
}

func challengeSalt(target string, purpose models.OtpPurpose) string {
	return target + "|" + string(purpose)
}
