/*
Package api exposes the worker's operational HTTP surface. It serves
no domain data; the data portal owns that. What runs here is the
plumbing an orchestrator and an operator need:

	GET /health    liveness: 200 while the process runs
	GET /ready     readiness: 200 when the data portal answers
	GET /metrics   Prometheus metrics
	GET /events    recent task lifecycle events, newest last

# Integration Points

The server runs beside the worker loop in the same process, wired as a
second actor of the run group in cmd/cloudnet. /ready probes the
portal with a bounded timeout, so a portal outage flips readiness
without hanging the probe. /events reads the broker's replay buffer;
it reflects only this process, not the fleet.

# Thread Safety

All handlers are stateless between requests. Stop drains in-flight
requests through the standard library's graceful shutdown.
*/
package api
