package processor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/dvas"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/pid"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/storage"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Deps are the collaborators the processor composes
type Deps struct {
	Portal  *portal.Client
	Storage *storage.Client
	PID     *pid.Client
	Dvas    *dvas.Client
	Engine  science.Engine
	Plotter science.Plotter
	QC      science.QC
}

// siteKey caches sites per effective date; campaign sites move
type siteKey struct {
	id   string
	date types.Date
}

// Processor composes the portal, storage, PID and DVAS clients with
// the scientific toolbox into the primitives task handlers run on.
// Reference data (sites, products, instruments, models, plottable
// variables) is cached for the processor's lifetime.
type Processor struct {
	portal  *portal.Client
	storage *storage.Client
	pid     *pid.Client
	dvas    *dvas.Client
	engine  science.Engine
	plotter science.Plotter
	qc      science.QC
	// httpc fetches plain URLs outside the portal and store, such as
	// calibration coefficient files
	httpc  *http.Client
	logger zerolog.Logger

	mu           sync.Mutex
	sites        map[siteKey]*types.Site
	products     map[string]*types.Product
	instruments  map[string]*types.InstrumentInfo
	models       map[string]*types.Model
	modelsLoaded bool
	variables    map[string][]types.ProductVariable
	varsLoaded   bool
}

// New creates a processor from its collaborators
func New(deps Deps) *Processor {
	return &Processor{
		portal:  deps.Portal,
		storage: deps.Storage,
		pid:     deps.PID,
		dvas:    deps.Dvas,
		engine:  deps.Engine,
		plotter: deps.Plotter,
		qc:      deps.QC,
		httpc: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   2 * time.Minute,
		},
		logger:      log.WithComponent("processor"),
		sites:       make(map[siteKey]*types.Site),
		products:    make(map[string]*types.Product),
		instruments: make(map[string]*types.InstrumentInfo),
		models:      make(map[string]*types.Model),
		variables:   make(map[string][]types.ProductVariable),
	}
}

// GetSite returns the site with the attributes effective on date
func (p *Processor) GetSite(ctx context.Context, id string, date types.Date) (*types.Site, error) {
	key := siteKey{id: id, date: date}
	p.mu.Lock()
	if site, ok := p.sites[key]; ok {
		p.mu.Unlock()
		return site, nil
	}
	p.mu.Unlock()

	site, err := p.portal.SiteAt(ctx, id, date)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.sites[key] = site
	p.mu.Unlock()
	return site, nil
}

// GetProduct returns the product definition for id
func (p *Processor) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	p.mu.Lock()
	if product, ok := p.products[id]; ok {
		p.mu.Unlock()
		return product, nil
	}
	p.mu.Unlock()

	product, err := p.portal.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.products[id] = product
	p.mu.Unlock()
	return product, nil
}

// GetInstrument returns the instrument unit for uuid
func (p *Processor) GetInstrument(ctx context.Context, uuid string) (*types.InstrumentInfo, error) {
	p.mu.Lock()
	if info, ok := p.instruments[uuid]; ok {
		p.mu.Unlock()
		return info, nil
	}
	p.mu.Unlock()

	info, err := p.portal.Instrument(ctx, uuid)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.instruments[uuid] = info
	p.mu.Unlock()
	return info, nil
}

// GetModel returns the model definition for id
func (p *Processor) GetModel(ctx context.Context, id string) (*types.Model, error) {
	p.mu.Lock()
	loaded := p.modelsLoaded
	if model, ok := p.models[id]; ok {
		p.mu.Unlock()
		return model, nil
	}
	p.mu.Unlock()
	if loaded {
		return nil, fmt.Errorf("unknown model %s", id)
	}

	models, err := p.portal.Models(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	for i := range models {
		p.models[models[i].ID] = &models[i]
	}
	p.modelsLoaded = true
	model, ok := p.models[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown model %s", id)
	}
	return model, nil
}

// ProductVariables returns the plottable variables of a product. An
// empty slice means the product has nothing to plot.
func (p *Processor) ProductVariables(ctx context.Context, productID string) ([]types.ProductVariable, error) {
	p.mu.Lock()
	if p.varsLoaded {
		variables := p.variables[productID]
		p.mu.Unlock()
		return variables, nil
	}
	p.mu.Unlock()

	all, err := p.portal.ProductsWithVariables(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	for _, pv := range all {
		p.variables[pv.ID] = pv.Variables
	}
	p.varsLoaded = true
	variables := p.variables[productID]
	p.mu.Unlock()
	return variables, nil
}

// NominalInstrument returns the instrument declared canonical for
// (site, product, date), or nil when none is configured.
func (p *Processor) NominalInstrument(ctx context.Context, siteID, productID string, date types.Date) (*types.InstrumentInfo, error) {
	return p.portal.NominalInstrument(ctx, siteID, productID, date)
}

// FetchProduct returns the unique existing product file matching the
// params, nil when none exists; several matches are an error.
func (p *Processor) FetchProduct(ctx context.Context, params types.ProcessParams) (*types.ProductFile, error) {
	base := params.Base()
	query := portal.FileQuery{
		Site:      base.Site.ID,
		Date:      &base.Date,
		Product:   base.Product.ID,
		Developer: true,
	}

	var (
		files []types.ProductFile
		err   error
	)
	switch t := params.(type) {
	case *types.ModelParams:
		if t.Model != nil {
			query.Model = t.Model.ID
		}
		if base.Product.ID == types.ProductModel {
			files, err = p.portal.ModelFiles(ctx, query)
		} else {
			files, err = p.portal.Files(ctx, query)
		}
	case *types.InstrumentParams:
		if t.Instrument != nil {
			query.InstrumentPID = t.Instrument.PID
		}
		files, err = p.portal.Files(ctx, query)
	case *types.ProductParams:
		if t.Instrument != nil {
			query.InstrumentPID = t.Instrument.PID
		}
		files, err = p.portal.Files(ctx, query)
	default:
		return nil, fmt.Errorf("unsupported params type %T", params)
	}
	if err != nil {
		return nil, err
	}

	switch len(files) {
	case 0:
		return nil, nil
	case 1:
		return &files[0], nil
	}
	return nil, fmt.Errorf("found %d %s files for %s on %s, expected at most one",
		len(files), base.Product.ID, base.Site.ID, base.Date)
}

// FetchProducts returns every product file matching (site, date,
// product) regardless of instrument. Task handlers use the listing to
// resolve which instrument's file feeds a composite product.
func (p *Processor) FetchProducts(ctx context.Context, site *types.Site, date types.Date, productID string) ([]types.ProductFile, error) {
	return p.portal.Files(ctx, portal.FileQuery{
		Site:      site.ID,
		Date:      &date,
		Product:   productID,
		Developer: true,
	})
}

// FetchCalibration returns the calibration document effective for the
// instrument on date, or nil when none exists.
func (p *Processor) FetchCalibration(ctx context.Context, instrumentPID string, date types.Date) (*types.Calibration, error) {
	return p.portal.Calibration(ctx, instrumentPID, date)
}

// UpdateStatuses advances the lifecycle status of the given raw files
func (p *Processor) UpdateStatuses(ctx context.Context, uuids []string, status types.RawStatus) error {
	for _, uuid := range uuids {
		if err := p.portal.UpdateRawStatus(ctx, uuid, status); err != nil {
			return err
		}
	}
	return nil
}

// Transform runs the scientific transform for req
func (p *Processor) Transform(ctx context.Context, req *science.ProcessRequest) (*science.ProcessResult, error) {
	return p.engine.Process(ctx, req)
}

// AddPIDToFile stamps a persistent identifier into the product file,
// reusing existingPID when non-empty.
func (p *Processor) AddPIDToFile(ctx context.Context, path, existingPID string) (*pid.Result, error) {
	return p.pid.AddPIDToFile(ctx, path, existingPID)
}

// LandingURL returns the public landing page of a file uuid
func (p *Processor) LandingURL(uuid string) string {
	return p.pid.LandingURL(uuid)
}

// UploadToDvas mirrors a frozen file to the DVAS federation
func (p *Processor) UploadToDvas(ctx context.Context, file *types.ProductFile) error {
	variables, err := p.ProductVariables(ctx, file.Product.ID)
	if err != nil {
		return err
	}
	return p.dvas.Upload(ctx, file, variables)
}
