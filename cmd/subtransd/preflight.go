package main

import (
	"context"
	"log/slog"

	"subtrans/internal/config"
	"subtrans/internal/logging"
	"subtrans/internal/preflight"
)

// reportPreflight logs environment checks at startup. Failures are warnings,
// not fatal: a missing binary only breaks tasks that reach its stage, and
// the API should stay queryable regardless.
func reportPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}
