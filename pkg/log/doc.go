/*
Package log provides structured logging for Strongroom using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ────────────────────┐
	│                                                          │
	│  ┌───────────────────────────────────────────┐          │
	│  │            Global Logger                   │          │
	│  │  - Zerolog instance                        │          │
	│  │  - Initialized via log.Init()              │          │
	│  │  - Thread-safe for concurrent use          │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │           Configuration                    │          │
	│  │  - Level: debug/info/warn/error            │          │
	│  │  - Format: JSON or console (human)         │          │
	│  │  - Output: stdout, file, or custom writer  │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │         Component Loggers                  │          │
	│  │  - WithComponent("worker")                 │          │
	│  │  - WithComponent("reconcile")              │          │
	│  │  - per-entity fields added at call sites   │          │
	│  └───────────────────────────────────────────┘          │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

# Usage

Initialize once at process start:

	log.Init(log.Config{
		Level:      "info",
		JSONOutput: true,
	})

Component loggers carry their field on every line:

	logger := log.WithComponent("reconcile")
	logger.Info().Str("job_id", job.ID).Msg("job created")

Job processing attaches the job and the chain per call:

	logger.Debug().
		Str("job_id", job.ID).
		Str("chain_alias", job.ChainAlias).
		Int64("processed", progress.ProcessedCount).
		Msg("checkpoint saved")

# Levels

debug: per-transaction detail (compared hashes, cursors). Noisy; off in
production.

info: lifecycle events (job claimed, job completed, workflow transitioned,
sweeper recovered N jobs).

warn: recoverable anomalies (finalBlock capture failed, address checkpoint
update skipped, provider call retried).

error: failures that terminate a job or reject a request.

Fatal is reserved for unusable-process conditions (bad config, store
unreachable at boot) and exits.
*/
package log
