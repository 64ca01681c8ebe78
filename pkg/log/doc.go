/*
Package log provides structured logging for the processing engine using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific child loggers, configurable log levels, and an optional
capture writer that tees every line into the alert ring buffer. All logs include
timestamps and support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  │  - Capture: tee into alert ring buffer      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Child Loggers                       │          │
	│  │  - WithComponent("worker")                  │          │
	│  │  - WithTask(1234, "process")                │          │
	│  │  - WithSite("bucharest")                    │          │
	│  │  - WithProduct("categorize")                │          │
	│  └────────────────────────────────────────────┘          │
	│                                                           │
	└───────────────────────────────────────────────────────────┘

# Usage

Initialize once at process start:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers carry stable fields through a subsystem:

	logger := log.WithComponent("freeze-cron")
	logger.Info().Int("candidates", n).Msg("Enqueued freeze tasks")

Task-scoped loggers are created once per received task so every line of a
task's lifetime can be correlated:

	logger := log.WithTask(task.ID, string(task.Type))
	logger.Warn().Str("reason", reason).Msg("Skipping task")

# Capture Writer

When Config.Capture is set, every formatted log line is duplicated into the
given writer before level filtering of downstream consumers. The worker passes
the alert package's ring buffer here; on task failure the buffer contents are
attached to the Slack notification, giving operators the log tail without
shell access to the worker.

# Integration Points

  - pkg/worker: task-scoped child loggers, capture buffer wiring
  - pkg/cron: component loggers for the enqueuers
  - pkg/alert: Capture writer implementation
  - cmd/cloudnet: Init() from CLI flags and environment

# Thread Safety

Zerolog loggers are immutable value types; child loggers may be created and
used concurrently. Init() must be called before any goroutines log, typically
first thing in main().
*/
package log
