// Package logging provides structured logging for apigov.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - JSON or console output on stderr
//   - Automatic context field injection (trace_id, run id, source file)
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, "20251230_181740-1a2b3c4d")
//	ctx = logging.WithSource(ctx, "src/api/routes.py")
//	logger.Info(ctx, "stage completed", zap.String("stage", "detect"))
//
// Output includes the correlation fields:
//
//	{"level":"info","ts":"...","msg":"stage completed","run.id":"...","source":"src/api/routes.py","stage":"detect"}
//
// # Testing
//
// NewTestLogger returns a Logger backed by zaptest/observer with assertion helpers.
package logging
