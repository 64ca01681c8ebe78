/*
Package events provides an in-memory event broker for the processing
engine's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
task lifecycle events to interested subscribers. The worker publishes a
step-by-step trail of every task; the metrics recorder counts them and
the API server serves the retained history for debugging.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────┐
	│                                                       │
	│  Publisher → Event Channel (buffer: 100)              │
	│       ↓                                               │
	│  Broadcast Loop ──→ Recent ring (last 100 events)     │
	│       ↓                                               │
	│  Subscriber Channels (buffer: 50 each)                │
	│                                                       │
	│  Event Types:                                         │
	│    task.received    worker pulled a task              │
	│    task.completed   task finished with artifacts      │
	│    task.skipped     expected unsolvable state         │
	│    task.failed      unexpected error, alert sent      │
	│    task.published   follow-up or cron enqueue         │
	│    file.uploaded    product PUT to the object store   │
	│    file.frozen      volatile file got its PID         │
	│    dvas.published   metadata mirrored to DVAS         │
	│                                                       │
	└───────────────────────────────────────────────────────┘

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	broker.Publish(events.New(events.EventTaskCompleted,
		"Processed radar for bucharest 2020-10-22",
		map[string]string{"task_id": "42", "product": "radar"}))

Subscribers drain a buffered channel; full buffers skip, so a slow
consumer can never stall the worker:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for event := range sub {
		// count, log, forward
	}

# Delivery Semantics

Publish is non-blocking and delivery is best effort. Queue outcomes
never depend on event delivery; the broker exists for observability
only. The Recent ring keeps the last 100 events for the /events
endpoint of pkg/api.

# Integration Points

  - pkg/worker: publishes the task lifecycle trail
  - pkg/cron: publishes task.published for enqueued work
  - pkg/metrics: Recorder subscribes and updates counters
  - pkg/api: serves Recent() on /events

# Thread Safety

All broker methods are safe for concurrent use. Events are treated as
immutable after Publish.
*/
package events
