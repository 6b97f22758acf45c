package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the guard subsystem.
const (
	EventRateLimitTrip    = "rate_limit_trip"
	EventLoginFailed      = "login_failed"
	EventLoginSucceeded   = "login_succeeded"
	EventOtpIssued        = "otp_issued"
	EventOtpVerifyFailed  = "otp_verify_failed"
	EventTotpVerifyFailed = "totp_verify_failed"
	EventGuardDenied      = "guard_denied"
	EventDeliveryFailed   = "otp_delivery_failed"
)

// AuditEvent is a structured security event. The guard subsystem only emits
// these; storage and alerting live behind the audit collaborator.
type AuditEvent struct {
	Type          string
	Key           string // rate-limit key, OTP target, or account id
	IPAddress     string
	Outcome       string
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits fire-and-forget structured audit events via slog.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Emit writes the event. It never blocks the caller on downstream failures
// and never returns an error; audit is advisory, not load-bearing.
func (al *AuditLogger) Emit(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.Type),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", event.Outcome))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if event.FailureReason != "" || event.Outcome == "denied" {
		level = slog.LevelWarn
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
