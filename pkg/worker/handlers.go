package worker

import (
	"context"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/housekeeping"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/processor"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// updatePlots regenerates and re-uploads the visualizations of an
// already processed file. No quality check, no raw status updates.
func (w *Worker) updatePlots(ctx context.Context, params types.ProcessParams, dir string) error {
	base := params.Base()
	file, err := w.processor.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if file == nil {
		return types.SkipTask("No %s file for %s on %s to plot", base.Product.ID, base.Site.ID, base.Date)
	}
	path, err := w.processor.DownloadProduct(ctx, file, dir)
	if err != nil {
		return err
	}
	images, err := w.processor.CreateAndUploadImages(ctx, path, base.Product.ID, file.UUID, file.Filename, dir)
	if err != nil {
		return err
	}
	w.logger.Info().Str("filename", file.Filename).Int("images", len(images)).Msg("Plots updated")
	return nil
}

// updateQC reruns the quality checks of an already processed file and
// replaces its report
func (w *Worker) updateQC(ctx context.Context, params types.ProcessParams, dir string) error {
	base := params.Base()
	file, err := w.processor.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if file == nil {
		return types.SkipTask("No %s file for %s on %s to check", base.Product.ID, base.Site.ID, base.Date)
	}
	path, err := w.processor.DownloadProduct(ctx, file, dir)
	if err != nil {
		return err
	}
	level, err := w.processor.UploadQualityReport(ctx, path, file.UUID, base.Site, base.Product.ID)
	if err != nil {
		return err
	}
	w.logger.Info().Str("filename", file.Filename).Str("level", string(level)).Msg("Quality report updated")
	return nil
}

// freeze finalizes a volatile file: mint a PID, stamp it into the
// local copy and republish under the stable bucket. Frozen files are
// immutable, so a second freeze of the same product is a no-op skip.
func (w *Worker) freeze(ctx context.Context, params types.ProcessParams, dir string) error {
	base := params.Base()
	file, err := w.processor.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if file == nil {
		return types.SkipTask("No %s file for %s on %s to freeze", base.Product.ID, base.Site.ID, base.Date)
	}
	if !file.Volatile {
		return types.SkipTask("Product already frozen")
	}
	path, err := w.processor.DownloadProduct(ctx, file, dir)
	if err != nil {
		return err
	}
	result, err := w.processor.AddPIDToFile(ctx, path, "")
	if err != nil {
		return err
	}
	if err := w.processor.FreezeFile(ctx, file, path, result.PID); err != nil {
		return err
	}
	w.publishFileEvent(events.EventFileFrozen, file.UUID, file.Filename)
	return nil
}

// ingestHousekeeping feeds the day's raw uploads of one instrument
// unit into the housekeeping subsystem. All raw files qualify, not
// just the measurement set the transforms read.
func (w *Worker) ingestHousekeeping(ctx context.Context, params *types.InstrumentParams, dir string) error {
	if w.housekeeping == nil {
		return types.SkipTask("housekeeping is not configured")
	}
	base := params.Base()
	raw, err := w.processor.DownloadInstrument(ctx, base.Site.ID, base.Date, params.Instrument, dir, processor.RawFilter{})
	if err != nil {
		return err
	}
	resp, err := w.housekeeping.Ingest(ctx, &housekeeping.Request{
		Site:          base.Site.ID,
		Date:          base.Date,
		InstrumentID:  params.Instrument.InstrumentID,
		InstrumentPID: params.Instrument.PID,
		RawPaths:      raw.Paths,
		UUIDs:         raw.UUIDs,
	})
	if err != nil {
		return err
	}
	w.logger.Info().
		Str("instrument", params.Instrument.InstrumentID).
		Int("records", resp.Records).
		Msg("Housekeeping ingested")
	return nil
}

// uploadToDvas federates a frozen product's metadata. Products already
// federated keep their record; republication goes through the explicit
// purge path instead.
func (w *Worker) uploadToDvas(ctx context.Context, params types.ProcessParams) error {
	base := params.Base()
	file, err := w.processor.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if file == nil {
		return types.SkipTask("No %s file for %s on %s to federate", base.Product.ID, base.Site.ID, base.Date)
	}
	if file.DvasID != nil {
		return types.SkipTask("Product already has a DVAS id")
	}
	if err := w.processor.UploadToDvas(ctx, file); err != nil {
		return err
	}
	w.publishFileEvent(events.EventDvasPublished, file.UUID, file.Filename)
	return nil
}
