// Package logger provides the structured logging interface used across igtags.
//
// It wraps zerolog behind a small Logger interface so components can be
// handed a logger in their constructor and tests can swap in TestLogger or
// NewNopLogger.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("phase finished", map[string]interface{}{
//	    "phase": "images",
//	    "saved": 12,
//	})
package logger
