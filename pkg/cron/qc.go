package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/alert"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// QCOptions configures a quality-control enqueuer run
type QCOptions struct {
	Portal   *portal.Client
	Notifier *alert.Notifier

	// Date overrides the day to check; zero means yesterday
	Date types.Date
}

// QCJob publishes one qc task per file measured on the target day, so
// every file gets rechecked against the current quality-control
// release shortly after its measurement day closes.
type QCJob struct {
	portal   *portal.Client
	notifier *alert.Notifier
	date     types.Date
	logger   zerolog.Logger
}

// NewQCJob creates a quality-control enqueuer
func NewQCJob(opts QCOptions) *QCJob {
	date := opts.Date
	if date.IsZero() {
		date = types.Today().AddDays(-1)
	}
	return &QCJob{
		portal:   opts.Portal,
		notifier: opts.Notifier,
		date:     date,
		logger:   log.WithComponent("cron"),
	}
}

// Run performs one enqueue round and returns the first error it hits
func (j *QCJob) Run(ctx context.Context) error {
	if err := j.run(ctx); err != nil {
		j.sendAlert(ctx, err)
		return err
	}
	return nil
}

func (j *QCJob) run(ctx context.Context) error {
	files, err := j.portal.Files(ctx, portal.FileQuery{Date: &j.date})
	if err != nil {
		return err
	}
	modelFiles, err := j.portal.ModelFiles(ctx, portal.FileQuery{Date: &j.date, AllModels: true})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, file := range append(files, modelFiles...) {
		payload := &types.TaskPayload{
			Type:            types.TaskQc,
			SiteID:          file.Site.ID,
			ProductID:       file.Product.ID,
			MeasurementDate: file.MeasurementDate,
			ScheduledAt:     now,
			Priority:        cronPriority,
		}
		if file.InstrumentInfo != nil {
			uuid := file.InstrumentInfo.UUID
			payload.InstrumentInfoUUID = &uuid
		}
		if file.Model != nil {
			id := file.Model.ID
			payload.ModelID = &id
		}
		if err := j.portal.PublishTask(ctx, payload); err != nil {
			return err
		}
	}

	j.logger.Info().
		Str("date", j.date.String()).
		Int("published", len(files)+len(modelFiles)).
		Msg("QC round finished")
	return nil
}

func (j *QCJob) sendAlert(ctx context.Context, err error) {
	if j.notifier == nil {
		return
	}
	a := alert.Alert{Source: alert.SourceWorker, Err: err, Date: j.date.String()}
	if sendErr := j.notifier.Send(ctx, a); sendErr != nil {
		j.logger.Error().Err(sendErr).Msg("Failed to send alert")
	}
}
