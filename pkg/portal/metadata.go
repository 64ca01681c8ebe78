package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// FileQuery selects product files from api/files or api/model-files.
// Zero-valued fields are omitted from the query string.
type FileQuery struct {
	Site           string
	Date           *types.Date
	DateFrom       *types.Date
	DateTo         *types.Date
	Product        string
	Instrument     string
	InstrumentPID  string
	Model          string
	AllModels      bool
	Volatile       *bool
	ShowLegacy     bool
	Developer      bool
	UpdatedAtFrom  time.Time
	ReleasedBefore time.Time
}

func (q FileQuery) values() url.Values {
	v := url.Values{}
	if q.Site != "" {
		v.Set("site", q.Site)
	}
	if q.Date != nil {
		v.Set("date", q.Date.String())
	}
	if q.DateFrom != nil {
		v.Set("dateFrom", q.DateFrom.String())
	}
	if q.DateTo != nil {
		v.Set("dateTo", q.DateTo.String())
	}
	if q.Product != "" {
		v.Set("product", q.Product)
	}
	if q.Instrument != "" {
		v.Set("instrument", q.Instrument)
	}
	if q.InstrumentPID != "" {
		v.Set("instrumentPid", q.InstrumentPID)
	}
	if q.Model != "" {
		v.Set("model", q.Model)
	}
	if q.AllModels {
		v.Set("allModels", "true")
	}
	if q.Volatile != nil {
		v.Set("volatile", strconv.FormatBool(*q.Volatile))
	}
	if q.ShowLegacy {
		v.Set("showLegacy", "true")
	}
	if q.Developer {
		v.Set("developer", "true")
	}
	if !q.UpdatedAtFrom.IsZero() {
		v.Set("updatedAtFrom", q.UpdatedAtFrom.UTC().Format(time.RFC3339))
	}
	if !q.ReleasedBefore.IsZero() {
		v.Set("releasedBefore", q.ReleasedBefore.UTC().Format(time.RFC3339))
	}
	return v
}

// RawQuery selects raw uploads from api/raw-files or api/raw-model-files
type RawQuery struct {
	Site          string
	Date          *types.Date
	DateFrom      *types.Date
	DateTo        *types.Date
	Instrument    string
	InstrumentPID string
	Model         string
	Status        []types.RawStatus
}

func (q RawQuery) values() url.Values {
	v := url.Values{}
	if q.Site != "" {
		v.Set("site", q.Site)
	}
	if q.Date != nil {
		v.Set("date", q.Date.String())
	}
	if q.DateFrom != nil {
		v.Set("dateFrom", q.DateFrom.String())
	}
	if q.DateTo != nil {
		v.Set("dateTo", q.DateTo.String())
	}
	if q.Instrument != "" {
		v.Set("instrument", q.Instrument)
	}
	if q.InstrumentPID != "" {
		v.Set("instrumentPid", q.InstrumentPID)
	}
	if q.Model != "" {
		v.Set("model", q.Model)
	}
	for _, s := range q.Status {
		v.Add("status[]", string(s))
	}
	return v
}

// ProductVariables lists the plottable variables of one product
type ProductVariables struct {
	ID        string                  `json:"id"`
	Variables []types.ProductVariable `json:"variables"`
}

// Sites lists all measurement sites
func (c *Client) Sites(ctx context.Context) ([]types.Site, error) {
	var sites []types.Site
	if err := c.Get(ctx, "api/sites", nil, &sites); err != nil {
		return nil, fmt.Errorf("failed to fetch sites: %w", err)
	}
	return sites, nil
}

// Site fetches one site by id
func (c *Client) Site(ctx context.Context, id string) (*types.Site, error) {
	var site types.Site
	if err := c.Get(ctx, "api/sites/"+url.PathEscape(id), nil, &site); err != nil {
		return nil, fmt.Errorf("failed to fetch site %s: %w", id, err)
	}
	return &site, nil
}

// SiteAt fetches a site with the attributes effective on the given
// date. Campaign sites move; location and type tags are date-scoped.
func (c *Client) SiteAt(ctx context.Context, id string, date types.Date) (*types.Site, error) {
	query := url.Values{}
	query.Set("date", date.String())

	var site types.Site
	if err := c.Get(ctx, "api/sites/"+url.PathEscape(id), query, &site); err != nil {
		return nil, fmt.Errorf("failed to fetch site %s: %w", id, err)
	}
	return &site, nil
}

// Instruments lists all registered instrument units
func (c *Client) Instruments(ctx context.Context) ([]types.InstrumentInfo, error) {
	var infos []types.InstrumentInfo
	if err := c.Get(ctx, "api/instruments", nil, &infos); err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	return infos, nil
}

// Instrument fetches one instrument unit by uuid
func (c *Client) Instrument(ctx context.Context, uuid string) (*types.InstrumentInfo, error) {
	var info types.InstrumentInfo
	if err := c.Get(ctx, "api/instruments/"+url.PathEscape(uuid), nil, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch instrument %s: %w", uuid, err)
	}
	return &info, nil
}

// Products lists all product definitions
func (c *Client) Products(ctx context.Context) ([]types.Product, error) {
	var products []types.Product
	if err := c.Get(ctx, "api/products", nil, &products); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

// Product fetches one product definition by id
func (c *Client) Product(ctx context.Context, id string) (*types.Product, error) {
	var product types.Product
	if err := c.Get(ctx, "api/products/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}
	return &product, nil
}

// ProductsWithVariables lists every product with its plottable variables
func (c *Client) ProductsWithVariables(ctx context.Context) ([]ProductVariables, error) {
	var products []ProductVariables
	if err := c.Get(ctx, "api/products/variables", nil, &products); err != nil {
		return nil, fmt.Errorf("failed to fetch product variables: %w", err)
	}
	return products, nil
}

// Models lists all model definitions
func (c *Client) Models(ctx context.Context) ([]types.Model, error) {
	var models []types.Model
	if err := c.Get(ctx, "api/models", nil, &models); err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	return models, nil
}

// NominalInstrument returns the instrument configured as nominal for
// (site, product, date), or nil when none is configured.
func (c *Client) NominalInstrument(ctx context.Context, siteID, productID string, date types.Date) (*types.InstrumentInfo, error) {
	query := url.Values{}
	query.Set("site", siteID)
	query.Set("product", productID)
	query.Set("date", date.String())

	var resp struct {
		NominalInstrument types.InstrumentInfo `json:"nominalInstrument"`
	}
	if err := c.Get(ctx, "api/nominal-instrument", query, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch nominal instrument: %w", err)
	}
	return &resp.NominalInstrument, nil
}

// Files queries product files
func (c *Client) Files(ctx context.Context, q FileQuery) ([]types.ProductFile, error) {
	var files []types.ProductFile
	if err := c.Get(ctx, "api/files", q.values(), &files); err != nil {
		return nil, fmt.Errorf("failed to fetch files: %w", err)
	}
	return files, nil
}

// File fetches one product file by uuid
func (c *Client) File(ctx context.Context, uuid string) (*types.ProductFile, error) {
	var file types.ProductFile
	if err := c.Get(ctx, "api/files/"+url.PathEscape(uuid), nil, &file); err != nil {
		return nil, fmt.Errorf("failed to fetch file %s: %w", uuid, err)
	}
	return &file, nil
}

// ModelFiles queries model product files
func (c *Client) ModelFiles(ctx context.Context, q FileQuery) ([]types.ProductFile, error) {
	var files []types.ProductFile
	if err := c.Get(ctx, "api/model-files", q.values(), &files); err != nil {
		return nil, fmt.Errorf("failed to fetch model files: %w", err)
	}
	return files, nil
}

// RawFiles queries raw instrument uploads
func (c *Client) RawFiles(ctx context.Context, q RawQuery) ([]types.RawFile, error) {
	var files []types.RawFile
	if err := c.Get(ctx, "api/raw-files", q.values(), &files); err != nil {
		return nil, fmt.Errorf("failed to fetch raw files: %w", err)
	}
	return files, nil
}

// RawModelFiles queries raw model uploads
func (c *Client) RawModelFiles(ctx context.Context, q RawQuery) ([]types.RawFile, error) {
	var files []types.RawFile
	if err := c.Get(ctx, "api/raw-model-files", q.values(), &files); err != nil {
		return nil, fmt.Errorf("failed to fetch raw model files: %w", err)
	}
	return files, nil
}

// Calibration fetches the calibration document effective for the
// instrument on the given date, or nil when none exists.
func (c *Client) Calibration(ctx context.Context, instrumentPID string, date types.Date) (*types.Calibration, error) {
	query := url.Values{}
	query.Set("instrumentPid", instrumentPID)
	query.Set("date", date.String())

	var cal types.Calibration
	if err := c.Get(ctx, "api/calibration", query, &cal); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch calibration: %w", err)
	}
	return &cal, nil
}

// PutFile creates or replaces the product record for filename
func (c *Client) PutFile(ctx context.Context, filename string, payload *types.FilePayload) error {
	if err := c.Put(ctx, "files/"+url.PathEscape(filename), payload, nil); err != nil {
		return fmt.Errorf("failed to put file %s: %w", filename, err)
	}
	return nil
}

// UpdateFile patches fields of an existing product record in place.
// Used for flipping volatile on freeze and for DVAS bookkeeping; the
// updates map must carry the "uuid" key.
func (c *Client) UpdateFile(ctx context.Context, updates map[string]any) error {
	if _, ok := updates["uuid"]; !ok {
		return fmt.Errorf("file update is missing uuid")
	}
	if err := c.Post(ctx, "api/files", updates, nil); err != nil {
		return fmt.Errorf("failed to update file %v: %w", updates["uuid"], err)
	}
	return nil
}

// UpdateDvasInfo records the DVAS id and timestamp of a federated file
func (c *Client) UpdateDvasInfo(ctx context.Context, uuid string, updatedAt time.Time, dvasID int64) error {
	return c.UpdateFile(ctx, map[string]any{
		"uuid":          uuid,
		"dvasId":        dvasID,
		"dvasUpdatedAt": updatedAt.UTC().Format(time.RFC3339),
	})
}

// ClearDvasInfo removes the DVAS linkage of a file after deletion
func (c *Client) ClearDvasInfo(ctx context.Context, uuid string) error {
	return c.UpdateFile(ctx, map[string]any{
		"uuid":          uuid,
		"dvasId":        nil,
		"dvasUpdatedAt": nil,
	})
}

// PutVisualization records one rendered image under its s3 key
func (c *Client) PutVisualization(ctx context.Context, s3key string, viz *types.Visualization) error {
	if err := c.Put(ctx, "visualizations/"+url.PathEscape(s3key), viz, nil); err != nil {
		return fmt.Errorf("failed to put visualization %s: %w", s3key, err)
	}
	return nil
}

// ImageRecord is one uploaded plot awaiting registration
type ImageRecord struct {
	S3Key      string
	VariableID string
	Dimensions types.ImageDimensions
}

// PutImages records a batch of rendered images against one product file
func (c *Client) PutImages(ctx context.Context, images []ImageRecord, productUUID string) error {
	for _, img := range images {
		viz := &types.Visualization{
			SourceFileID: productUUID,
			VariableID:   img.VariableID,
			Dimensions:   img.Dimensions,
		}
		if err := c.PutVisualization(ctx, img.S3Key, viz); err != nil {
			return err
		}
	}
	return nil
}

// PutQualityReport stores the quality report of a product file
func (c *Client) PutQualityReport(ctx context.Context, uuid string, report *types.QualityReport) error {
	if err := c.Put(ctx, "quality/"+url.PathEscape(uuid), report, nil); err != nil {
		return fmt.Errorf("failed to put quality report for %s: %w", uuid, err)
	}
	return nil
}

// UpdateRawStatus advances the lifecycle status of one raw upload
func (c *Client) UpdateRawStatus(ctx context.Context, uuid string, status types.RawStatus) error {
	body := map[string]any{"uuid": uuid, "status": status}
	if err := c.Post(ctx, "upload-metadata", body, nil); err != nil {
		return fmt.Errorf("failed to update raw file %s status: %w", uuid, err)
	}
	return nil
}

// Ping verifies the portal is reachable; used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, "api/sites", nil, nil, nil, false)
	if err != nil {
		return fmt.Errorf("portal ping failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("portal ping returned status %d", status)
	}
	return nil
}
