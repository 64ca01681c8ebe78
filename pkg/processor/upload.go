package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/ncdf"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// UploadFile uploads a finished product and registers its metadata
// record under filename. The payload is derived from the local NetCDF;
// under patch the file already carries the reused uuid and pid in its
// global attributes, so a patch never creates a second version.
func (p *Processor) UploadFile(ctx context.Context, params types.ProcessParams, localPath, filename string, volatile, patch bool) (*types.FilePayload, error) {
	payload, err := p.buildPayload(params, localPath, volatile)
	if err != nil {
		return nil, err
	}

	result, err := p.storage.UploadProduct(ctx, localPath, filename, volatile)
	if err != nil {
		return nil, err
	}
	payload.Version = result.Version

	if err := p.portal.PutFile(ctx, filename, payload); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("filename", filename).
		Str("uuid", payload.UUID).
		Bool("volatile", volatile).
		Bool("patch", patch).
		Msg("Uploaded product")
	return payload, nil
}

func (p *Processor) buildPayload(params types.ProcessParams, localPath string, volatile bool) (*types.FilePayload, error) {
	ds, err := ncdf.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read product file: %w", err)
	}
	uuid, ok := ds.AttrString("file_uuid")
	if !ok || uuid == "" {
		return nil, fmt.Errorf("%s has no file_uuid attribute", localPath)
	}

	checksum, size, err := sha256Of(localPath)
	if err != nil {
		return nil, err
	}
	format, err := ncdf.FormatOf(localPath)
	if err != nil {
		return nil, err
	}

	base := params.Base()
	payload := &types.FilePayload{
		UUID:            uuid,
		Checksum:        checksum,
		MeasurementDate: base.Date,
		Format:          format,
		Size:            size,
		Volatile:        volatile,
		Site:            base.Site.ID,
		Product:         base.Product.ID,
	}
	if pidAttr, ok := ds.AttrString("pid"); ok && pidAttr != "" {
		payload.PID = &pidAttr
	}
	if v, ok := ds.AttrString("cloudnetpy_version"); ok {
		payload.ProcessorVersion = v
	}
	if src, ok := ds.AttrString("source_file_uuids"); ok && src != "" {
		payload.SourceFileIDs = ncdf.SplitUUIDList(src)
	}

	switch t := params.(type) {
	case *types.ModelParams:
		if t.Model != nil {
			payload.Model = &t.Model.ID
		}
	case *types.InstrumentParams:
		if t.Instrument != nil {
			payload.InstrumentPID = &t.Instrument.PID
			payload.InstrumentInfo = &t.Instrument.UUID
		}
	case *types.ProductParams:
		if t.Instrument != nil {
			payload.InstrumentPID = &t.Instrument.PID
			payload.InstrumentInfo = &t.Instrument.UUID
		}
	}
	return payload, nil
}

// FreezeFile publishes a finalized file: the local copy, which must
// already carry its PID, goes to the stable bucket, the metadata record
// flips to frozen, and the superseded volatile object is removed. The
// checksum is recomputed because stamping the PID changed the bytes.
func (p *Processor) FreezeFile(ctx context.Context, file *types.ProductFile, localPath, pid string) error {
	checksum, _, err := sha256Of(localPath)
	if err != nil {
		return err
	}

	result, err := p.storage.UploadProduct(ctx, localPath, file.Filename, false)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"uuid":     file.UUID,
		"volatile": false,
		"pid":      pid,
		"checksum": checksum,
		"size":     result.Size,
	}
	if result.Version != "" {
		updates["version"] = result.Version
	}
	if err := p.portal.UpdateFile(ctx, updates); err != nil {
		return err
	}

	if err := p.storage.DeleteVolatileProduct(ctx, file.Filename); err != nil {
		return err
	}

	p.logger.Info().
		Str("filename", file.Filename).
		Str("uuid", file.UUID).
		Str("pid", pid).
		Msg("File frozen")
	return nil
}

// CreateAndUploadImages renders the product's plottable variables into
// dir and registers one visualization record per produced image. The
// plotter decides the final image set; variables absent from the file
// are simply not rendered.
func (p *Processor) CreateAndUploadImages(ctx context.Context, filePath, productID, uuid, filename, dir string) ([]string, error) {
	variables, err := p.ProductVariables(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(variables) == 0 {
		p.logger.Info().Str("product", productID).Msg("No plottable variables")
		return nil, nil
	}

	ids := make([]string, len(variables))
	for i, v := range variables {
		ids[i] = v.ID
	}

	images, err := p.plotter.Plot(ctx, &science.PlotRequest{
		ProductFilePath: filePath,
		Product:         productID,
		Variables:       ids,
		OutputDir:       dir,
	})
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	records := make([]portal.ImageRecord, 0, len(images))
	for _, img := range images {
		s3key := fmt.Sprintf("%s-%s-%s.png", stem, shortUUID(uuid), img.VariableID)
		if err := p.storage.UploadImage(ctx, img.Path, s3key); err != nil {
			return nil, err
		}
		records = append(records, portal.ImageRecord{
			S3Key:      s3key,
			VariableID: img.VariableID,
			Dimensions: img.Dimensions,
		})
	}
	if err := p.portal.PutImages(ctx, records, uuid); err != nil {
		return nil, err
	}
	keys := make([]string, len(records))
	for i, record := range records {
		keys[i] = record.S3Key
	}

	p.logger.Info().
		Int("count", len(keys)).
		Str("product", productID).
		Msg("Uploaded visualizations")
	return keys, nil
}

// UploadQualityReport runs quality control over the file, stores the
// report and returns the worst severity found.
func (p *Processor) UploadQualityReport(ctx context.Context, filePath, uuid string, site *types.Site, productID string) (types.ErrorLevel, error) {
	req := &science.QCRequest{
		ProductFilePath: filePath,
		Product:         productID,
	}
	if site != nil {
		req.Site = site.ID
	}

	report, err := p.qc.Run(ctx, req)
	if err != nil {
		return "", err
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}
	if err := p.portal.PutQualityReport(ctx, uuid, report); err != nil {
		return "", err
	}
	return report.WorstErrorLevel(), nil
}

func sha256Of(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
