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

// cronPriority puts enqueued maintenance behind all regular work;
// lower numbers run first
const cronPriority = 100

// FreezeOptions configures a freeze enqueuer run
type FreezeOptions struct {
	Portal   *portal.Client
	Notifier *alert.Notifier

	// FreezeAfterDays is the hold period for regular files,
	// FreezeModelAfterDays the one for model files.
	FreezeAfterDays      int
	FreezeModelAfterDays int
}

// FreezeJob publishes freeze tasks for volatile files whose hold
// period has passed and whose source ancestry is settled
type FreezeJob struct {
	portal     *portal.Client
	notifier   *alert.Notifier
	after      int
	modelAfter int
	logger     zerolog.Logger

	// ancestors caches metadata fetched during the freezability walk;
	// source files are shared across many candidates
	ancestors map[string]*types.ProductFile
}

// NewFreezeJob creates a freeze enqueuer
func NewFreezeJob(opts FreezeOptions) *FreezeJob {
	return &FreezeJob{
		portal:     opts.Portal,
		notifier:   opts.Notifier,
		after:      opts.FreezeAfterDays,
		modelAfter: opts.FreezeModelAfterDays,
		logger:     log.WithComponent("cron"),
	}
}

// Run performs one enqueue round and returns the first error it hits.
// Errors are also posted to Slack so an operator sees a silent crontab
// failure.
func (j *FreezeJob) Run(ctx context.Context) error {
	j.ancestors = make(map[string]*types.ProductFile)
	if err := j.run(ctx); err != nil {
		j.sendAlert(ctx, err)
		return err
	}
	return nil
}

func (j *FreezeJob) run(ctx context.Context) error {
	now := time.Now().UTC()
	volatile := true

	files, err := j.portal.Files(ctx, portal.FileQuery{
		Volatile:       &volatile,
		ReleasedBefore: now.AddDate(0, 0, -j.after),
	})
	if err != nil {
		return err
	}
	modelFiles, err := j.portal.ModelFiles(ctx, portal.FileQuery{
		Volatile:       &volatile,
		ReleasedBefore: now.AddDate(0, 0, -j.modelAfter),
		AllModels:      true,
	})
	if err != nil {
		return err
	}

	published := 0
	for _, file := range append(files, modelFiles...) {
		freezable, err := j.isFreezable(ctx, &file)
		if err != nil {
			return err
		}
		if !freezable {
			j.logger.Debug().
				Str("uuid", file.UUID).
				Str("filename", file.Filename).
				Msg("Ancestry not settled, not freezing")
			continue
		}
		if err := j.publishFreeze(ctx, &file, now); err != nil {
			return err
		}
		published++
	}

	j.logger.Info().
		Int("candidates", len(files)+len(modelFiles)).
		Int("published", published).
		Msg("Freeze round finished")
	return nil
}

// isFreezable walks the file's source ancestry. Every ancestor must be
// frozen and non-experimental; only the candidate itself may still be
// volatile.
func (j *FreezeJob) isFreezable(ctx context.Context, file *types.ProductFile) (bool, error) {
	for _, uuid := range file.SourceFileIDs {
		src, ok := j.ancestors[uuid]
		if !ok {
			var err error
			src, err = j.portal.File(ctx, uuid)
			if err != nil {
				return false, err
			}
			j.ancestors[uuid] = src
		}
		if src.Volatile || src.Product.IsExperimental() {
			return false, nil
		}
		settled, err := j.isFreezable(ctx, src)
		if err != nil || !settled {
			return settled, err
		}
	}
	return true, nil
}

func (j *FreezeJob) publishFreeze(ctx context.Context, file *types.ProductFile, now time.Time) error {
	payload := &types.TaskPayload{
		Type:            types.TaskFreeze,
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
	j.logger.Info().
		Str("filename", file.Filename).
		Str("site", file.Site.ID).
		Str("product", file.Product.ID).
		Msg("Freeze task published")
	return nil
}

func (j *FreezeJob) sendAlert(ctx context.Context, err error) {
	if j.notifier == nil {
		return
	}
	a := alert.Alert{Source: alert.SourcePid, Err: err}
	if sendErr := j.notifier.Send(ctx, a); sendErr != nil {
		j.logger.Error().Err(sendErr).Msg("Failed to send alert")
	}
}
