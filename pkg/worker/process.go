package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/ncdf"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/processor"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// process runs the fetch → transform → diff → publish pipeline shared
// by every product family. Input selection is the per-product part;
// everything from the transform on is uniform.
func (w *Worker) process(ctx context.Context, task *types.Task, params types.ProcessParams, dir string) error {
	base := params.Base()
	logger := log.WithTask(task.ID, string(task.Type))

	existing, err := w.processor.FetchProduct(ctx, params)
	if err != nil {
		return err
	}

	uuids := types.UuidAccumulator{}
	volatilePID := ""
	if existing != nil && existing.Volatile {
		uuids.Volatile = &existing.UUID
		if existing.PID != nil {
			volatilePID = *existing.PID
		}
	}

	filename := processor.Filename(params)
	if existing != nil {
		filename = existing.Filename
	}

	in, err := w.fetchInputs(ctx, params, dir)
	if err != nil {
		return err
	}
	uuids.Raw = in.rawUUIDs

	outputPath := filepath.Join(dir, filename)
	result, err := w.processor.Transform(ctx, w.buildRequest(params, in, uuids.Volatile, outputPath))
	if err != nil {
		return err
	}
	uuids.Product = result.UUID

	if err := checkOutput(outputPath, params); err != nil {
		return err
	}

	// Experimental products never carry persistent identifiers
	if !base.Product.IsExperimental() {
		if _, err := w.processor.AddPIDToFile(ctx, outputPath, volatilePID); err != nil {
			return err
		}
	}

	volatile, patch := true, false
	frozenParent := false
	if existing != nil {
		diff, err := w.compareWithExisting(ctx, existing, outputPath, dir)
		if err != nil {
			return err
		}
		switch diff {
		case ncdf.DiffNone:
			logger.Info().Str("filename", filename).Msg("Skipping PUT to data portal, file has not changed")
			return nil
		case ncdf.DiffMinor:
			if err := w.preparePatch(ctx, existing, outputPath, base.Product); err != nil {
				return err
			}
			uuids.Product = existing.UUID
			patch = true
			volatile = existing.Volatile
			frozenParent = !existing.Volatile
		case ncdf.DiffMajor:
			volatile = true
		}
	}

	payload, err := w.processor.UploadFile(ctx, params, outputPath, filename, volatile, patch)
	if err != nil {
		return err
	}
	w.publishFileEvent(events.EventFileUploaded, payload.UUID, filename)

	if _, err := w.processor.CreateAndUploadImages(ctx, outputPath, base.Product.ID, uuids.Product, filename, dir); err != nil {
		return err
	}
	level, err := w.processor.UploadQualityReport(ctx, outputPath, uuids.Product, base.Site, base.Product.ID)
	if err != nil {
		return err
	}
	if err := w.processor.UpdateStatuses(ctx, uuids.Raw, types.RawStatusProcessed); err != nil {
		return err
	}

	logger.Info().
		Str("product", base.Product.ID).
		Str("url", w.processor.LandingURL(uuids.Product)).
		Str("qc", string(level)).
		Msg("Product processed")

	if task.Options.DerivedProducts && !base.Site.IsHidden() && !base.Site.IsModelOnly() {
		if err := w.publishDerived(ctx, params, frozenParent); err != nil {
			return err
		}
	}
	return nil
}

// buildRequest assembles the transform invocation. A volatile
// predecessor's uuid is passed through so the regenerated file keeps
// its identity and overwrites in place.
func (w *Worker) buildRequest(params types.ProcessParams, in *taskInputs, volatileUUID *string, outputPath string) *science.ProcessRequest {
	base := params.Base()
	req := &science.ProcessRequest{
		Product:     base.Product.ID,
		Site:        base.Site.ID,
		Date:        base.Date,
		InputPaths:  in.paths,
		OutputPath:  outputPath,
		Calibration: in.calibration,
		Options:     in.options,
	}
	if volatileUUID != nil {
		req.UUID = *volatileUUID
	}
	switch t := params.(type) {
	case *types.InstrumentParams:
		req.InstrumentID = t.Instrument.InstrumentID
		req.InstrumentPID = t.Instrument.PID
	case *types.ModelParams:
		req.ModelID = t.Model.ID
	case *types.ProductParams:
		if t.Instrument != nil {
			req.InstrumentID = t.Instrument.InstrumentID
			req.InstrumentPID = t.Instrument.PID
		}
	}
	return req
}

// Plausibility limits on transform output. A radiometer retrieval whose
// median liquid water path exceeds the limit is a unit mixup upstream,
// and a stare this far off vertical is not a vertical stare.
const (
	maxMedianLWP    = 10.0 // kg m-2
	maxMedianZenith = 15.0 // degrees
)

// checkOutput rejects scientifically impossible transform output before
// anything is published. Files the codec cannot read are left for the
// quality checker.
func checkOutput(path string, params types.ProcessParams) error {
	base := params.Base()
	instrumentID := ""
	switch t := params.(type) {
	case *types.InstrumentParams:
		instrumentID = t.Instrument.InstrumentID
	case *types.ProductParams:
		if t.Instrument != nil {
			instrumentID = t.Instrument.InstrumentID
		}
	}
	ds, err := ncdf.ReadFile(path)
	if err != nil {
		return nil
	}
	if instrumentID == "hatpro" {
		if med, ok := variableMedian(ds, "lwp"); ok && med > maxMedianLWP {
			return types.MiscError("Unrealistic lwp values: median %.1f kg m-2", med)
		}
	}
	if base.Product.ID == types.ProductDopplerLidar {
		if med, ok := variableMedian(ds, "zenith_angle"); ok && med > maxMedianZenith {
			return types.MiscError("Invalid zenith angle: median %.1f degrees", med)
		}
	}
	return nil
}

// variableMedian is the median of the unmasked values of a variable, or
// false when the variable is absent, non-numeric or fully masked
func variableMedian(ds *ncdf.Dataset, name string) (float64, bool) {
	v, ok := ds.Var(name)
	if !ok {
		return 0, false
	}
	var vals []float64
	for i := 0; i < v.Len(); i++ {
		if v.MaskedAt(i) {
			continue
		}
		val, ok := v.FloatAt(i)
		if !ok {
			return 0, false
		}
		vals = append(vals, val)
	}
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2, true
	}
	return vals[mid], true
}

// compareWithExisting downloads the predecessor and classifies how the
// fresh file differs from it
func (w *Worker) compareWithExisting(ctx context.Context, existing *types.ProductFile, newPath, dir string) (ncdf.DiffKind, error) {
	oldDir, err := subdir(dir, "existing")
	if err != nil {
		return ncdf.DiffMajor, err
	}
	oldPath, err := w.processor.DownloadProduct(ctx, existing, oldDir)
	if err != nil {
		return ncdf.DiffMajor, err
	}
	return ncdf.CompareFiles(oldPath, newPath)
}

// preparePatch rewrites the fresh file to impersonate its predecessor:
// same file_uuid, same pid. The upload then overwrites the old object
// instead of creating a second version.
func (w *Worker) preparePatch(ctx context.Context, existing *types.ProductFile, path string, product *types.Product) error {
	ds, err := ncdf.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	ds.SetAttr("file_uuid", existing.UUID)
	if err := ncdf.WriteFile(path, ds); err != nil {
		return fmt.Errorf("failed to rewrite %s: %w", path, err)
	}
	if product.IsExperimental() {
		return nil
	}
	existingPID := ""
	if existing.PID != nil {
		existingPID = *existing.PID
	}
	_, err = w.processor.AddPIDToFile(ctx, path, existingPID)
	return err
}

func subdir(dir, name string) (string, error) {
	d := filepath.Join(dir, name)
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", err
	}
	return d, nil
}
