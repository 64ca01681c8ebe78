/*
Package worker implements the queue consumer that turns portal tasks
into processed, plotted, checked, frozen and federated files.

	          ┌───────────────────────────────────────────┐
	          │                  Worker                   │
	          │                                           │
	 receive  │  classify ── (site, date, product, scope) │
	 ───────► │     │                                     │
	          │  dispatch on (product kind, task type)    │
	          │     │                                     │
	          │  handler inside a scoped temp dir         │
	          │     │                                     │
	 complete │  outcome: done / skipped / failed         │
	 ◄─────── │            (failures alert Slack with     │
	          │             the captured log tail)        │
	          └───────────────────────────────────────────┘

One worker handles one task at a time; parallelism comes from running
several workers against the same queue. The loop stops between tasks
on SIGINT/SIGTERM and exits voluntarily after MaxTasks so the
orchestrator restarts a fresh process.

# Dispatch

Each task names a product, and the product's kind picks the row:

	kind        process   plot   qc   freeze   hkd    dvas
	model          ✓        ✓     ✓      ✓     skip   skip
	evaluation     ✓        ✓     ✓      ✓     skip   skip
	instrument     ✓        ✓     ✓      ✓      ✓     skip
	product        ✓        ✓     ✓      ✓     skip     ✓

Skip cells complete the task with a logged reason; an unknown task
type fails it.

# Outcomes

A SkipError marks the task complete, never failed: missing raw data or
pending hardware support will not resolve through retries, and the
cron enqueuers re-publish work when conditions change. Anything else
fails the task and posts a Slack alert carrying the task's log tail.

# Integration Points

  - pkg/processor: every fetch, transform and upload primitive
  - pkg/portal: the task queue (receive, complete, fail, publish)
  - pkg/housekeeping: the hkd task delegate
  - pkg/alert: failure notifications and the log ring buffer
  - pkg/events: task lifecycle events for the API server

# Thread Safety

A Worker is single-threaded by design; run one goroutine per Worker.
*/
package worker
