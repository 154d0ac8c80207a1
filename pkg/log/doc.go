/*
Package log provides structured logging for Beacon using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	import "github.com/playbeacon/beacon/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("ingest server started")
	log.Warn("key cache refresh failed, serving stale entry")
	log.Fatal("cannot open heartbeat store") // exits process

Structured logging:

	log.Logger.Info().
		Str("server_id", "srv-123").
		Bool("replay", true).
		Msg("heartbeat admitted")

Component loggers:

	gateLog := log.WithComponent("gate")
	gateLog.Debug().Str("reason", "invalid_signature").Msg("heartbeat rejected")

	jobLog := log.WithComponent("worker").
		With().Str("server_id", "srv-123").Logger()
	jobLog.Error().Err(err).Msg("job failed")

# Integration Points

This package is used by:

  - pkg/gate: admission outcomes and audit-adjacent rejection logs
  - pkg/worker: job claim/process/fail lifecycle
  - pkg/api: request handling errors
  - pkg/keycache: stale-if-error refresh warnings
  - pkg/storage, pkg/queue: adapter open/migration messages

Never log agent payload contents or key material; rejection logs carry the
server id and reason code only.
*/
package log
