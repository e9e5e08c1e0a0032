// Package log provides structured logging helpers built on log/slog.
//
// The package wraps a standard slog handler with SanitizeHandler, which
// cleans log attributes before they reach the underlying handler:
//
//   - URL values are stripped of userinfo so credentials embedded in a
//     crawled address never reach the log output.
//   - Oversized string values, such as meta lines echoed from remote
//     capsules, are truncated to a bounded length.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("crawl started", slog.String("seed", seedURL))
//
//	// Set as default logger
//	slog.SetDefault(logger)
//
// The handler wrapper works with any underlying slog handler, so text
// and JSON output both receive the same sanitization.
package log
