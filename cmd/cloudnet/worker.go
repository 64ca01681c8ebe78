package main

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/alert"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/api"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/housekeeping"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/processor"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/worker"
)

const shutdownGrace = 10 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue consumer",
	Long: `Run a single queue consumer against the data portal.

The worker pulls one task at a time, runs it through the scientific
toolbox and reports the outcome back to the queue. It exits cleanly
after max_tasks handled tasks so an orchestrator restarts a fresh
process; run several workers for parallelism.

An operational HTTP server (liveness, readiness, Prometheus metrics,
recent events) listens on the configured address for the lifetime of
the worker.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ring := alert.NewRingBuffer(alert.DefaultRingSize)
	cfg, err := loadConfig(ring)
	if err != nil {
		return err
	}

	c := buildClients(cfg)
	notifier := alert.NewNotifier(cfg.SlackAPIToken, cfg.SlackChannelID)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	recorder := metrics.NewRecorder(broker)
	recorder.Start()
	defer recorder.Stop()

	toolbox := science.NewToolbox(cfg.Tunables.ToolboxBinary, cfg.Tunables.ToolboxTimeout)
	proc := processor.New(processor.Deps{
		Portal:  c.portal,
		Storage: c.storage,
		PID:     c.pid,
		Dvas:    c.dvas,
		Engine:  toolbox,
		Plotter: toolbox,
		QC:      toolbox,
	})

	w := worker.New(worker.Options{
		Portal:       c.portal,
		Processor:    proc,
		Housekeeping: housekeeping.New(toolbox),
		Notifier:     notifier,
		Ring:         ring,
		Broker:       broker,
		PollInterval: cfg.Tunables.PollInterval,
		MaxTasks:     cfg.Tunables.MaxTasks,
		TempDir:      cfg.Tunables.TempDir,
	})

	health := api.NewHealthServer(api.Options{
		ListenAddr: cfg.Tunables.ListenAddr,
		Portal:     c.portal,
		Broker:     broker,
		Version:    Version,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var group run.Group
	group.Add(func() error {
		return w.Run(ctx)
	}, func(error) {
		cancel()
	})
	group.Add(func() error {
		return health.Start()
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		_ = health.Stop(shutdownCtx)
	})
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = group.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logger := log.WithComponent("main")
		logger.Info().Str("signal", sig.Signal.String()).Msg("Shut down on signal")
		return nil
	}
	return err
}
