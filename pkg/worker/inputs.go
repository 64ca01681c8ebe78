package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/ncdf"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/processor"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/storage"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// taskInputs is everything a transform consumes beyond the target
// coordinates: local input files, the raw uuids to mark processed
// afterwards, and any side material (calibration, coefficient files,
// radar spectra).
type taskInputs struct {
	paths       []string
	rawUUIDs    []string
	calibration map[string]any
	options     map[string]any
}

// unsupportedInstruments have pending hardware support; their tasks
// skip with an explicit reason instead of failing or silently passing
var unsupportedInstruments = map[string]bool{
	"wls100s": true,
	"wls400s": true,
	"mira-10": true,
}

// excludedInstruments never participate in instrument tie-breaking
var excludedInstruments = map[string]bool{
	"mira-10": true,
}

// instrumentPreference orders instrument ids per source product for
// tie-breaking when a site operates several units and none is declared
// nominal. First match wins.
var instrumentPreference = map[string][]string{
	types.ProductRadar:        {"mira-35", "rpg-fmcw-35", "rpg-fmcw-94", "copernicus"},
	types.ProductLidar:        {"chm15k", "chm15kx", "cl61", "cl51", "cl31", "ct25k", "pollyxt"},
	types.ProductMwr:          {"hatpro", "radiometrics"},
	types.ProductDisdrometer:  {"thies-lnm", "parsivel"},
	types.ProductDopplerLidar: {"halo-doppler-lidar", "wls200s", "wls70"},
}

// voodooRadars are the only radars whose Level-0 spectra feed the
// voodoo categorize variant
var voodooRadars = map[string]bool{
	"rpg-fmcw-94": true,
}

// rawFilters narrows raw downloads per instrument id. Instruments
// absent from the table take every upload of the day. Patterns are
// case-insensitive.
var rawFilters = map[string]processor.RawFilter{
	"rpg-fmcw-94": {IncludePattern: `zen.*\.lv1$`},
	"rpg-fmcw-35": {IncludePattern: `zen.*\.lv1$`},
	"mira-35":     {IncludePattern: `\.(mmclx|znc|zspc)`},
	"copernicus":  {ExcludePattern: `\.txt$`},
	"galileo":     {ExcludePattern: `\.txt$`},
	"parsivel":    {ExcludePattern: `\.log$`},

	// HALO stares: co-channel only; cross-polarized stares share the
	// filename scheme and differ by upload tag
	"halo-doppler-lidar": {
		IncludePattern:   `Stare.*\.hpl$`,
		IncludeTagSubset: []string{"co"},
		ExcludeTagSubset: []string{"co", "cross"},
	},
}

// hatproRawPattern selects the radiometer file set a Level-1c build
// needs: brightness temperatures plus the housekeeping, weather,
// infrared and boundary-layer scans
const hatproRawPattern = `\.(brt|hkd|met|irt|blb|bls)$`

// adjoiningInstruments roll their files over at local midnight, so
// covering one UTC day needs the next day's uploads too
var adjoiningInstruments = map[string]bool{
	"halo-doppler-lidar": true,
	"cl61":               true,
}

// fetchInputs resolves and downloads the product-specific inputs:
// instrument products read raw uploads, the model product reads the
// day's raw model upload, and composite products read other products.
func (w *Worker) fetchInputs(ctx context.Context, params types.ProcessParams, dir string) (*taskInputs, error) {
	switch t := params.(type) {
	case *types.InstrumentParams:
		return w.instrumentInputs(ctx, t, dir)
	case *types.ModelParams:
		if t.Kind() == types.KindEvaluation {
			return w.evaluationInputs(ctx, t, dir)
		}
		return w.modelInputs(ctx, t, dir)
	case *types.ProductParams:
		return w.productInputs(ctx, t, dir)
	}
	return nil, fmt.Errorf("unsupported params type %T", params)
}

func (w *Worker) instrumentInputs(ctx context.Context, params *types.InstrumentParams, dir string) (*taskInputs, error) {
	id := params.Instrument.InstrumentID
	if unsupportedInstruments[id] {
		return nil, types.SkipTask("Processing %s data is not implemented", id)
	}
	if params.Product.ID == types.ProductMwrL1c {
		return w.mwrL1cInputs(ctx, params, dir)
	}

	filter := rawFilters[id]
	var (
		raw *storage.RawDownload
		err error
	)
	if adjoiningInstruments[id] {
		raw, err = w.processor.DownloadAdjoiningDailyFiles(ctx, params, dir, filter)
	} else {
		raw, err = w.processor.DownloadInstrument(ctx, params.Site.ID, params.Date, params.Instrument, dir, filter)
	}
	if err != nil {
		return nil, err
	}
	return &taskInputs{paths: raw.Paths, rawUUIDs: raw.UUIDs}, nil
}

// mwrL1cInputs downloads the day's HATPRO raw set plus the calibration
// document and the coefficient files it links
func (w *Worker) mwrL1cInputs(ctx context.Context, params *types.InstrumentParams, dir string) (*taskInputs, error) {
	raw, err := w.processor.DownloadInstrument(ctx, params.Site.ID, params.Date, params.Instrument, dir,
		processor.RawFilter{IncludePattern: hatproRawPattern})
	if err != nil {
		return nil, err
	}

	cal, err := w.processor.FetchCalibration(ctx, params.Instrument.PID, params.Date)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, types.RawDataMissing("no calibration for %s on %s", params.Instrument.InstrumentID, params.Date)
	}

	in := &taskInputs{paths: raw.Paths, rawUUIDs: raw.UUIDs, calibration: cal.Data}
	links, _ := cal.Data["coefficientLinks"].([]any)
	if len(links) > 0 {
		coefDir, err := subdir(dir, "coefficients")
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, link := range links {
			url, ok := link.(string)
			if !ok {
				continue
			}
			path, err := w.processor.DownloadURL(ctx, url, coefDir)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		in.options = map[string]any{"coefficientPaths": paths}
	}
	return in, nil
}

// expectedModelSteps is the time-step count of a complete daily file
// per model; models not listed are hourly with both midnights included
var expectedModelSteps = map[string]int{
	"gdas1":      8,
	"ecmwf-open": 9,
}

const defaultModelSteps = 25

func (w *Worker) modelInputs(ctx context.Context, params *types.ModelParams, dir string) (*taskInputs, error) {
	upload, err := w.processor.FetchModelUpload(ctx, params.Site.ID, params.Date, params.Model.ID)
	if err != nil {
		return nil, err
	}
	raw, err := w.processor.DownloadRawData(ctx, []types.RawFile{*upload}, dir)
	if err != nil {
		return nil, err
	}
	if err := checkModelFile(raw.Paths[0], params.Model.ID); err != nil {
		return nil, err
	}
	return &taskInputs{paths: raw.Paths, rawUUIDs: raw.UUIDs}, nil
}

// checkModelFile rejects model uploads with missing time steps before
// the transform wastes a run on them. Files the codec cannot read are
// left for the toolbox to validate.
func checkModelFile(path, modelID string) error {
	ds, err := ncdf.ReadFile(path)
	if err != nil {
		return nil
	}
	dim, ok := ds.Dim("time")
	if !ok {
		return nil
	}
	expected := defaultModelSteps
	if steps, ok := expectedModelSteps[modelID]; ok {
		expected = steps
	}
	if dim.Len < expected {
		return types.MiscError("Incomplete model file: %d time steps, expected %d", dim.Len, expected)
	}
	return nil
}

// evaluationSource maps an evaluation product onto the product it
// scores against the model; cloud fraction reads categorize directly
func evaluationSource(productID string) string {
	if productID == "l3-cf" {
		return types.ProductCategorize
	}
	return strings.TrimPrefix(productID, "l3-")
}

func (w *Worker) evaluationInputs(ctx context.Context, params *types.ModelParams, dir string) (*taskInputs, error) {
	modelProduct, err := w.processor.GetProduct(ctx, types.ProductModel)
	if err != nil {
		return nil, err
	}
	modelFile, err := w.processor.FetchProduct(ctx, &types.ModelParams{
		BaseParams: types.BaseParams{Site: params.Site, Date: params.Date, Product: modelProduct},
		Model:      params.Model,
	})
	if err != nil {
		return nil, err
	}
	if modelFile == nil {
		return nil, types.SkipTask("Missing required input product: %s %s", params.Model.ID, types.ProductModel)
	}

	sourceFile, err := w.fetchSource(ctx, params.Base(), evaluationSource(params.Product.ID))
	if err != nil {
		return nil, err
	}

	paths, err := w.processor.DownloadProducts(ctx, []types.ProductFile{*modelFile, *sourceFile}, dir)
	if err != nil {
		return nil, err
	}
	return &taskInputs{paths: paths}, nil
}

func (w *Worker) productInputs(ctx context.Context, params *types.ProductParams, dir string) (*taskInputs, error) {
	switch params.Product.ID {
	case types.ProductMwrSingle, types.ProductMwrMulti:
		return w.mwrProductInputs(ctx, params, dir)
	case types.ProductCategorize:
		return w.categorizeInputs(ctx, params, dir, false)
	case types.ProductCategorizeVoodo:
		return w.categorizeInputs(ctx, params, dir, true)
	case types.ProductCprSimulation:
		return w.cprSimulationInputs(ctx, params, dir)
	case types.ProductEpsilonLidar:
		return w.epsilonLidarInputs(ctx, params, dir)
	}
	return w.sourceProductInputs(ctx, params, dir)
}

// sourceProductInputs downloads every declared source product of the
// target; Level-2 retrievals read exactly their categorize variant
func (w *Worker) sourceProductInputs(ctx context.Context, params *types.ProductParams, dir string) (*taskInputs, error) {
	if len(params.Product.SourceProductIDs) == 0 {
		return nil, types.SkipTask("%s declares no source products", params.Product.ID)
	}
	var files []types.ProductFile
	for _, sourceID := range params.Product.SourceProductIDs {
		file, err := w.fetchSource(ctx, params.Base(), sourceID)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	paths, err := w.processor.DownloadProducts(ctx, files, dir)
	if err != nil {
		return nil, err
	}
	return &taskInputs{paths: paths}, nil
}

// mwrProductInputs reads the day's Level-1c radiometer product of the
// same physical instrument
func (w *Worker) mwrProductInputs(ctx context.Context, params *types.ProductParams, dir string) (*taskInputs, error) {
	l1c, err := w.processor.GetProduct(ctx, types.ProductMwrL1c)
	if err != nil {
		return nil, err
	}
	file, err := w.processor.FetchProduct(ctx, &types.ProductParams{
		BaseParams: types.BaseParams{Site: params.Site, Date: params.Date, Product: l1c},
		Instrument: params.Instrument,
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductMwrL1c)
	}
	path, err := w.processor.DownloadProduct(ctx, file, dir)
	if err != nil {
		return nil, err
	}
	return &taskInputs{paths: []string{path}}, nil
}

// categorizeInputs assembles the Level-1c fusion set: one model, one
// radar, one lidar, a radiometer retrieval and optionally a
// disdrometer. The voodoo variant additionally pulls the RPG radar's
// Level-0 spectra.
func (w *Worker) categorizeInputs(ctx context.Context, params *types.ProductParams, dir string, voodoo bool) (*taskInputs, error) {
	base := params.Base()

	modelProduct, err := w.processor.GetProduct(ctx, types.ProductModel)
	if err != nil {
		return nil, err
	}
	modelFile, err := w.processor.FetchProduct(ctx, &types.ModelParams{
		BaseParams: types.BaseParams{Site: base.Site, Date: base.Date, Product: modelProduct},
	})
	if err != nil {
		return nil, err
	}
	if modelFile == nil {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductModel)
	}

	var allowedRadars map[string]bool
	if voodoo {
		allowedRadars = voodooRadars
	}
	radar, err := w.pickSourceFile(ctx, base, types.ProductRadar, allowedRadars)
	if err != nil {
		return nil, err
	}
	if radar == nil {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductRadar)
	}
	lidar, err := w.pickSourceFile(ctx, base, types.ProductLidar, nil)
	if err != nil {
		return nil, err
	}
	if lidar == nil {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductLidar)
	}

	files := []types.ProductFile{*modelFile, *radar, *lidar}

	mwr, err := w.pickMwrFile(ctx, base)
	if err != nil {
		return nil, err
	}
	if mwr != nil {
		files = append(files, *mwr)
	} else if !radarHasBuiltinLWP(radar) {
		// 94 GHz RPG radars measure liquid water along the beam, so
		// only they may stand in for a missing radiometer
		return nil, types.SkipTask("Missing required input product: %s", types.ProductMwr)
	}

	disdrometer, err := w.pickSourceFile(ctx, base, types.ProductDisdrometer, nil)
	if err != nil {
		return nil, err
	}
	if disdrometer != nil {
		files = append(files, *disdrometer)
	}

	paths, err := w.processor.DownloadProducts(ctx, files, dir)
	if err != nil {
		return nil, err
	}
	in := &taskInputs{paths: paths}

	if voodoo {
		if radar.InstrumentInfo == nil {
			return nil, types.SkipTask("voodoo categorize needs an instrument-tagged radar file")
		}
		spectraDir, err := subdir(dir, "spectra")
		if err != nil {
			return nil, err
		}
		spectra, err := w.processor.DownloadInstrument(ctx, base.Site.ID, base.Date, radar.InstrumentInfo, spectraDir,
			processor.RawFilter{IncludePattern: `\.lv0$`})
		if err != nil {
			return nil, err
		}
		in.rawUUIDs = spectra.UUIDs
		in.options = map[string]any{"spectraPaths": spectra.Paths}
	}
	return in, nil
}

func radarHasBuiltinLWP(radar *types.ProductFile) bool {
	if radar.InstrumentInfo == nil {
		return false
	}
	id := radar.InstrumentInfo.InstrumentID
	return id == "rpg-fmcw-94" || id == "rpg-fmcw-35"
}

// pickMwrFile resolves the radiometer input: the processed mwr-single
// retrieval when available, else a Level-1b mwr file
func (w *Worker) pickMwrFile(ctx context.Context, base *types.BaseParams) (*types.ProductFile, error) {
	single, err := w.pickSourceFile(ctx, base, types.ProductMwrSingle, nil)
	if err != nil || single != nil {
		return single, err
	}
	return w.pickSourceFile(ctx, base, types.ProductMwr, nil)
}

// earthcareLaunch is the EarthCARE launch day; real CPR measurements
// exist from here on, so simulating them is refused
var earthcareLaunch = types.MustParseDate("2024-05-28")

func (w *Worker) cprSimulationInputs(ctx context.Context, params *types.ProductParams, dir string) (*taskInputs, error) {
	if params.Date.After(earthcareLaunch) {
		return nil, types.MiscError("No CPR simulation after EarthCARE launch (%s)", earthcareLaunch)
	}
	return w.sourceProductInputs(ctx, params, dir)
}

// epsilonLidarInputs pairs a Doppler-lidar stare file with the wind
// retrieval, preferring the wind file of the same physical unit
func (w *Worker) epsilonLidarInputs(ctx context.Context, params *types.ProductParams, dir string) (*taskInputs, error) {
	base := params.Base()

	stares, err := w.processor.FetchProducts(ctx, base.Site, base.Date, types.ProductDopplerLidar)
	if err != nil {
		return nil, err
	}
	stares = filterCandidates(stares, nil)
	if len(stares) == 0 {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductDopplerLidar)
	}
	stare := &stares[0]
	if params.Instrument != nil {
		for i := range stares {
			if stares[i].InstrumentInfo != nil && stares[i].InstrumentInfo.UUID == params.Instrument.UUID {
				stare = &stares[i]
				break
			}
		}
	}

	winds, err := w.processor.FetchProducts(ctx, base.Site, base.Date, types.ProductDopplerWind)
	if err != nil {
		return nil, err
	}
	if len(winds) == 0 {
		return nil, types.SkipTask("Missing required input product: %s", types.ProductDopplerWind)
	}
	wind := &winds[0]
	if stare.InstrumentInfo != nil {
		for i := range winds {
			if winds[i].InstrumentInfo != nil && winds[i].InstrumentInfo.PID == stare.InstrumentInfo.PID {
				wind = &winds[i]
				break
			}
		}
	}

	paths, err := w.processor.DownloadProducts(ctx, []types.ProductFile{*stare, *wind}, dir)
	if err != nil {
		return nil, err
	}
	return &taskInputs{paths: paths}, nil
}

// fetchSource returns the day's file of a required input product or a
// skip naming what is missing
func (w *Worker) fetchSource(ctx context.Context, base *types.BaseParams, productID string) (*types.ProductFile, error) {
	product, err := w.processor.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	file, err := w.processor.FetchProduct(ctx, &types.ProductParams{
		BaseParams: types.BaseParams{Site: base.Site, Date: base.Date, Product: product},
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, types.SkipTask("Missing required input product: %s", productID)
	}
	return file, nil
}

// pickSourceFile returns the day's file of an instrument-backed source
// product, or nil when none qualifies. With several candidates the
// site's nominal instrument wins, then the product's preference order.
func (w *Worker) pickSourceFile(ctx context.Context, base *types.BaseParams, productID string, allowed map[string]bool) (*types.ProductFile, error) {
	files, err := w.processor.FetchProducts(ctx, base.Site, base.Date, productID)
	if err != nil {
		return nil, err
	}
	candidates := filterCandidates(files, allowed)
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	}
	nominal, err := w.processor.NominalInstrument(ctx, base.Site.ID, productID, base.Date)
	if err != nil {
		return nil, err
	}
	return pickByInstrument(candidates, nominal, productID), nil
}

// filterCandidates drops excluded instruments and, when an allow list
// is given, everything outside it
func filterCandidates(files []types.ProductFile, allowed map[string]bool) []types.ProductFile {
	var kept []types.ProductFile
	for _, f := range files {
		id := ""
		if f.InstrumentInfo != nil {
			id = f.InstrumentInfo.InstrumentID
		}
		if excludedInstruments[id] {
			continue
		}
		if allowed != nil && !allowed[id] {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// pickByInstrument selects among several instrument files: the nominal
// declaration first, then the product's preference order, then the
// first candidate
func pickByInstrument(files []types.ProductFile, nominal *types.InstrumentInfo, productID string) *types.ProductFile {
	if nominal != nil {
		for i := range files {
			if files[i].InstrumentInfo != nil && files[i].InstrumentInfo.UUID == nominal.UUID {
				return &files[i]
			}
		}
	}
	for _, preferred := range instrumentPreference[productID] {
		for i := range files {
			if files[i].InstrumentInfo != nil && files[i].InstrumentInfo.InstrumentID == preferred {
				return &files[i]
			}
		}
	}
	return &files[0]
}
