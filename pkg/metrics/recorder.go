package metrics

import (
	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
)

// Recorder turns task lifecycle events into outcome counters. Clients
// that measure their own calls (queue publishes, DVAS uploads, request
// durations) observe their metrics directly; the recorder covers only
// the per-task outcomes so the worker loop stays free of metric calls.
type Recorder struct {
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewRecorder creates a recorder on the given broker
func NewRecorder(broker *events.Broker) *Recorder {
	return &Recorder{
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming events
func (r *Recorder) Start() {
	r.sub = r.broker.Subscribe()
	go r.run()
}

// Stop stops the recorder
func (r *Recorder) Stop() {
	close(r.stopCh)
	r.broker.Unsubscribe(r.sub)
}

func (r *Recorder) run() {
	for {
		select {
		case event, ok := <-r.sub:
			if !ok {
				return
			}
			r.record(event)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) record(event *events.Event) {
	taskType := event.Metadata["task_type"]
	switch event.Type {
	case events.EventTaskCompleted:
		TasksTotal.WithLabelValues(taskType, "completed").Inc()
	case events.EventTaskSkipped:
		TasksTotal.WithLabelValues(taskType, "skipped").Inc()
	case events.EventTaskFailed:
		TasksTotal.WithLabelValues(taskType, "failed").Inc()
	}
}
