/*
Package alert provides Slack failure notifications and the in-memory
log ring buffer that feeds them.

The worker tees its log output into a RingBuffer and resets the buffer
at the start of every task. When a task fails with an unexpected error,
the Notifier posts a Slack message with the failure context and uploads
the buffer contents as a file snippet, so the alert carries exactly the
failing task's log tail.

# Architecture

	┌───────────────────── ALERTING ──────────────────────┐
	│                                                      │
	│  zerolog ──MultiLevelWriter──→ RingBuffer (64 KiB)   │
	│                                     │                │
	│  task fails                         │ Contents()     │
	│      ↓                              ▼                │
	│  Notifier.Send(Alert{Source, Err, Site, Date, Log})  │
	│      ↓                                               │
	│  chat.postMessage / files upload (slack-go)          │
	│                                                      │
	└──────────────────────────────────────────────────────┘

# Usage

	ring := alert.NewRingBuffer(alert.DefaultRingSize)
	log.Init(log.Config{Level: log.InfoLevel, Capture: ring})

	notifier := alert.NewNotifier(cfg.SlackAPIToken, cfg.SlackChannelID)
	...
	ring.Reset() // per task
	if err := handle(task); err != nil {
		notifier.Send(ctx, alert.Alert{
			Source: alert.SourceData,
			Err:    err,
			SiteID: task.SiteID,
			Log:    ring.Contents(),
		})
	}

# Integration Points

  - pkg/log: Capture writer wired to the RingBuffer
  - pkg/worker: resets the ring per task, sends alerts on fatal errors
  - pkg/cron: sends alerts before exiting non-zero

# Thread Safety

RingBuffer is safe for concurrent writers and readers. Notifier is
stateless after construction and safe for concurrent Send calls. A
Notifier constructed without credentials is permanently disabled and
drops alerts silently.
*/
package alert
