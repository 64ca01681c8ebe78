package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/alert"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/housekeeping"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/processor"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Default loop parameters, overridable through Options
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxTasks     = 100
)

// Options configures a Worker
type Options struct {
	Portal       *portal.Client
	Processor    *processor.Processor
	Housekeeping housekeeping.Ingester
	Notifier     *alert.Notifier
	Ring         *alert.RingBuffer
	Broker       *events.Broker

	// PollInterval is the idle wait after an empty queue receive
	PollInterval time.Duration

	// MaxTasks bounds tasks per process; the worker exits cleanly
	// when reached and the orchestrator restarts it
	MaxTasks int

	// TempDir is the parent for per-task scratch directories;
	// empty means the system default
	TempDir string
}

// Worker is a single cooperative queue consumer. It pulls one task at
// a time, classifies it into typed process parameters, dispatches on
// (product kind, task type) and reports the outcome back to the
// queue.
type Worker struct {
	portal       *portal.Client
	processor    *processor.Processor
	housekeeping housekeeping.Ingester
	notifier     *alert.Notifier
	ring         *alert.RingBuffer
	broker       *events.Broker
	pollInterval time.Duration
	maxTasks     int
	tempDir      string
	logger       zerolog.Logger
}

// New creates a worker
func New(opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = DefaultMaxTasks
	}
	return &Worker{
		portal:       opts.Portal,
		processor:    opts.Processor,
		housekeeping: opts.Housekeeping,
		notifier:     opts.Notifier,
		ring:         opts.Ring,
		broker:       opts.Broker,
		pollInterval: opts.PollInterval,
		maxTasks:     opts.MaxTasks,
		tempDir:      opts.TempDir,
		logger:       log.WithComponent("worker"),
	}
}

// Run consumes tasks until ctx is canceled or MaxTasks tasks have been
// handled. Cancellation is honored between tasks only: a task in
// flight runs to completion so the queue never sees a half-done
// outcome.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("max_tasks", w.maxTasks).Msg("Worker started")

	processed := 0
	for processed < w.maxTasks {
		if ctx.Err() != nil {
			w.logger.Info().Int("processed", processed).Msg("Worker stopping")
			return nil
		}

		task, err := w.portal.ReceiveTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Int("processed", processed).Msg("Worker stopping")
				return nil
			}
			return fmt.Errorf("failed to receive task: %w", err)
		}
		if task == nil {
			select {
			case <-ctx.Done():
				w.logger.Info().Int("processed", processed).Msg("Worker stopping")
				return nil
			case <-time.After(w.pollInterval):
			}
			continue
		}

		// Detach the task from loop cancellation: a stop signal must
		// not abort the HTTP calls of a task already in flight.
		w.runTask(context.WithoutCancel(ctx), task)
		processed++
	}

	w.logger.Info().Int("processed", processed).Msg("Max tasks reached, exiting")
	return nil
}

// runTask executes one task and reports its outcome to the queue
func (w *Worker) runTask(ctx context.Context, task *types.Task) {
	if w.ring != nil {
		w.ring.Reset()
	}
	logger := log.WithTask(task.ID, string(task.Type))
	logger.Info().
		Str("site", task.SiteID).
		Str("product", task.ProductID).
		Str("date", task.MeasurementDate.String()).
		Msg("Task received")
	w.publishTaskEvent(events.EventTaskReceived, task, "")

	timer := metrics.NewTimer()
	err := w.executeTask(ctx, task)
	timer.ObserveDurationVec(metrics.TaskDuration, string(task.Type))

	switch skip, ok := types.AsSkip(err); {
	case err == nil:
		logger.Info().Dur("duration", timer.Duration()).Msg("Task completed")
		w.publishTaskEvent(events.EventTaskCompleted, task, "")
		w.finish(ctx, task, logger, true)
	case ok:
		// Skips complete the task: the queue must not retry states
		// that retries cannot solve.
		logger.Warn().Str("reason", skip.Reason).Msg("Task skipped")
		w.publishTaskEvent(events.EventTaskSkipped, task, skip.Reason)
		w.finish(ctx, task, logger, true)
	default:
		logger.Error().Err(err).Msg("Task failed")
		w.publishTaskEvent(events.EventTaskFailed, task, err.Error())
		w.sendAlert(ctx, task, err)
		w.finish(ctx, task, logger, false)
	}
}

// executeTask classifies the task and runs its handler inside a scoped
// scratch directory removed on every exit path
func (w *Worker) executeTask(ctx context.Context, task *types.Task) error {
	params, err := w.classify(ctx, task)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp(w.tempDir, "cloudnet-task-")
	if err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	defer os.RemoveAll(dir)

	return w.dispatch(ctx, task, params, dir)
}

// classify resolves the task's reference data into typed process
// parameters; the parameter shape picks the dispatch row
func (w *Worker) classify(ctx context.Context, task *types.Task) (types.ProcessParams, error) {
	site, err := w.processor.GetSite(ctx, task.SiteID, task.MeasurementDate)
	if err != nil {
		return nil, err
	}
	product, err := w.processor.GetProduct(ctx, task.ProductID)
	if err != nil {
		return nil, err
	}
	base := types.BaseParams{Site: site, Date: task.MeasurementDate, Product: product}

	switch product.Kind() {
	case types.KindModel, types.KindEvaluation:
		if task.ModelID == nil {
			return nil, fmt.Errorf("%s task for %s has no model id", task.Type, product.ID)
		}
		model, err := w.processor.GetModel(ctx, *task.ModelID)
		if err != nil {
			return nil, err
		}
		return &types.ModelParams{BaseParams: base, Model: model}, nil

	case types.KindInstrument:
		if task.InstrumentInfoUUID == nil {
			return nil, fmt.Errorf("%s task for %s has no instrument", task.Type, product.ID)
		}
		instrument, err := w.processor.GetInstrument(ctx, *task.InstrumentInfoUUID)
		if err != nil {
			return nil, err
		}
		return &types.InstrumentParams{BaseParams: base, Instrument: instrument}, nil

	default:
		params := &types.ProductParams{BaseParams: base}
		if task.InstrumentInfoUUID != nil {
			instrument, err := w.processor.GetInstrument(ctx, *task.InstrumentInfoUUID)
			if err != nil {
				return nil, err
			}
			params.Instrument = instrument
		}
		return params, nil
	}
}

// dispatch routes the task by (product kind, task type). Kinds a task
// type does not apply to are skips; an unknown type is a hard failure.
func (w *Worker) dispatch(ctx context.Context, task *types.Task, params types.ProcessParams, dir string) error {
	switch task.Type {
	case types.TaskProcess:
		return w.process(ctx, task, params, dir)
	case types.TaskPlot:
		return w.updatePlots(ctx, params, dir)
	case types.TaskQc:
		return w.updateQC(ctx, params, dir)
	case types.TaskFreeze:
		return w.freeze(ctx, params, dir)
	case types.TaskHkd:
		instrument, ok := params.(*types.InstrumentParams)
		if !ok {
			return types.SkipTask("housekeeping is not supported for %s products", params.Kind())
		}
		return w.ingestHousekeeping(ctx, instrument, dir)
	case types.TaskDvas:
		if params.Kind() != types.KindProduct {
			return types.SkipTask("DVAS upload is not supported for %s products", params.Kind())
		}
		return w.uploadToDvas(ctx, params)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

// finish reports the task outcome; a reporting failure is logged and
// swallowed because there is nothing better to do with it
func (w *Worker) finish(ctx context.Context, task *types.Task, logger zerolog.Logger, complete bool) {
	var err error
	if complete {
		err = w.portal.CompleteTask(ctx, task.ID)
	} else {
		err = w.portal.FailTask(ctx, task.ID)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to report task outcome")
	}
}

// sendAlert posts a Slack failure report with the captured log tail
func (w *Worker) sendAlert(ctx context.Context, task *types.Task, taskErr error) {
	if w.notifier == nil {
		return
	}
	a := alert.Alert{
		Source:  alertSource(task),
		Err:     taskErr,
		SiteID:  task.SiteID,
		Date:    task.MeasurementDate.String(),
		Product: task.ProductID,
	}
	if w.ring != nil {
		a.Log = w.ring.Contents()
	}
	if err := w.notifier.Send(ctx, a); err != nil {
		w.logger.Error().Err(err).Msg("Failed to send alert")
	}
}

// alertSource maps a task onto the source label operators filter
// alerts by
func alertSource(task *types.Task) alert.Source {
	switch task.Type {
	case types.TaskProcess:
		if task.ProductID == types.ProductModel {
			return alert.SourceModel
		}
		return alert.SourceData
	case types.TaskPlot:
		return alert.SourceImg
	case types.TaskFreeze:
		return alert.SourcePid
	default:
		return alert.SourceWorker
	}
}

func (w *Worker) publishTaskEvent(t events.EventType, task *types.Task, detail string) {
	if w.broker == nil {
		return
	}
	metadata := map[string]string{
		"task_type": string(task.Type),
		"site":      task.SiteID,
		"product":   task.ProductID,
		"date":      task.MeasurementDate.String(),
	}
	if detail != "" {
		metadata["detail"] = detail
	}
	msg := fmt.Sprintf("%s %s/%s %s", task.Type, task.SiteID, task.ProductID, task.MeasurementDate)
	w.broker.Publish(events.New(t, msg, metadata))
}

func (w *Worker) publishFileEvent(t events.EventType, uuid, filename string) {
	if w.broker == nil {
		return
	}
	w.broker.Publish(events.New(t, filename, map[string]string{
		"uuid":     uuid,
		"filename": filename,
	}))
}
