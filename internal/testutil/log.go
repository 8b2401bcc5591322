package testutil

import (
	"io"
	"log/slog"
	"testing"
)

// Silence discards the default slog output for the duration of the test.
// The previous default logger is restored in cleanup.
func Silence(tb testing.TB) {
	tb.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tb.Cleanup(func() { slog.SetDefault(prev) })
}
