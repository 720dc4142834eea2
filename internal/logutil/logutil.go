// Package logutil provides nil-safe logger helpers.
package logutil

import (
	"io"
	"log/slog"
)

var noop = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// Mask shortens a secret to its first and last four characters for logs.
// Values of eight characters or fewer are fully masked.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
