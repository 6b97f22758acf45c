package services

import (
	"io"
	"log/slog"

	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

// newTestLogger returns a logger that discards output, for use in tests
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestAuditLogger returns an audit logger backed by the discard logger
func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}
