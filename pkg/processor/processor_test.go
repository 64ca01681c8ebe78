package processor

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/ncdf"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/pid"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/storage"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// fakeBackend serves both the portal API and the object store facade
// for processor tests.
type fakeBackend struct {
	t  *testing.T
	mu sync.Mutex

	portalSrv *httptest.Server
	storeSrv  *httptest.Server

	portalReqs []recordedRequest
	storeReqs  []recordedRequest

	// routes maps "METHOD /path" to a canned JSON response
	routes  map[string]any
	objects map[string][]byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		t:       t,
		routes:  make(map[string]any),
		objects: make(map[string][]byte),
	}
	f.portalSrv = httptest.NewServer(http.HandlerFunc(f.handlePortal))
	f.storeSrv = httptest.NewServer(http.HandlerFunc(f.handleStore))
	t.Cleanup(f.portalSrv.Close)
	t.Cleanup(f.storeSrv.Close)
	return f
}

func (f *fakeBackend) on(method, path string, response any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = response
}

func (f *fakeBackend) handlePortal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.portalReqs = append(f.portalReqs, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})
	response, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		io.WriteString(w, `{}`)
		return
	}
	if status, isStatus := response.(int); isStatus {
		w.WriteHeader(status)
		return
	}
	require.NoError(f.t, json.NewEncoder(w).Encode(response))
}

func (f *fakeBackend) handleStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.storeReqs = append(f.storeReqs, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})
	f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		f.mu.Lock()
		f.objects[r.URL.Path] = body
		f.mu.Unlock()
		fmt.Fprintf(w, `{"size": %d, "version": "v-test"}`, len(body))
	case http.MethodGet:
		f.mu.Lock()
		object, ok := f.objects[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(object)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeBackend) portalRequests(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, req := range f.portalReqs {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeBackend) storeRequests(method string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, req := range f.storeReqs {
		if req.Method == method {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeBackend) setObject(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects["/"+bucket+"/"+key] = data
}

func (f *fakeBackend) newProcessor(engine science.Engine, plotter science.Plotter, qc science.QC) *Processor {
	portalClient := portal.NewClient(portal.Config{
		BaseURL:       f.portalSrv.URL,
		Username:      "simo",
		Password:      "letmein",
		RetryInterval: time.Millisecond,
	})
	storageClient := storage.NewClient(storage.Config{
		BaseURL:       f.storeSrv.URL,
		Username:      "simo",
		Password:      "letmein",
		RetryInterval: time.Millisecond,
	})
	pidClient := pid.NewClient(pid.Config{
		TestEnv:   true,
		PublicURL: "https://cloudnet.fmi.fi",
	})
	return New(Deps{
		Portal:  portalClient,
		Storage: storageClient,
		PID:     pidClient,
		Engine:  engine,
		Plotter: plotter,
		QC:      qc,
	})
}

func testSite() *types.Site {
	return &types.Site{ID: "bucharest", HumanReadableName: "Bucharest"}
}

func testProduct(id string, productTypes ...types.ProductType) *types.Product {
	return &types.Product{ID: id, Types: productTypes}
}

func testInstrument() *types.InstrumentInfo {
	return &types.InstrumentInfo{
		UUID:         "a1b2c3d4-1111-2222-3333-444455556666",
		PID:          "https://hdl.handle.net/123/rpg",
		InstrumentID: "rpg-fmcw-94",
	}
}

func md5OfBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestFilename(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	site := testSite()
	instrument := testInstrument()

	tests := []struct {
		name   string
		params types.ProcessParams
		want   string
	}{
		{
			name: "instrument",
			params: &types.InstrumentParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("radar", types.ProductTypeInstrument)},
				Instrument: instrument,
			},
			want: "20201022_bucharest_rpg-fmcw-94_a1b2c3d4.nc",
		},
		{
			name: "model",
			params: &types.ModelParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("model")},
				Model:      &types.Model{ID: "ecmwf"},
			},
			want: "20201022_bucharest_ecmwf.nc",
		},
		{
			name: "evaluation",
			params: &types.ModelParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("l3-cf", types.ProductTypeEvaluation)},
				Model:      &types.Model{ID: "ecmwf"},
			},
			want: "20201022_bucharest_l3-cf_ecmwf.nc",
		},
		{
			name: "plain product",
			params: &types.ProductParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("classification", types.ProductTypeGeophysical)},
			},
			want: "20201022_bucharest_classification.nc",
		},
		{
			name: "iwc alias",
			params: &types.ProductParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("iwc", types.ProductTypeGeophysical)},
			},
			want: "20201022_bucharest_iwc-Z-T-method.nc",
		},
		{
			name: "lwc alias",
			params: &types.ProductParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("lwc", types.ProductTypeGeophysical)},
			},
			want: "20201022_bucharest_lwc-scaled-adiabatic.nc",
		},
		{
			name: "instrument-scoped product",
			params: &types.ProductParams{
				BaseParams: types.BaseParams{Site: site, Date: date, Product: testProduct("mwr-single", types.ProductTypeGeophysical)},
				Instrument: instrument,
			},
			want: "20201022_bucharest_mwr-single_a1b2c3d4.nc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.params))
		})
	}
}

func TestRawFilterApply(t *testing.T) {
	files := []types.RawFile{
		{Filename: "201022_000000_P06_ZEN.LV1", Size: 100},
		{Filename: "201022_120000_P06_ZEN.LV1", Size: 300},
		{Filename: "201022_000000_P06_ZEN.LV0", Size: 900},
		{Filename: "Stare_06_20201022_12.hpl", Size: 50, Tags: []string{"co"}},
		{Filename: "Stare_06_20201022_13.hpl", Size: 60, Tags: []string{"co", "cross"}},
	}

	tests := []struct {
		name   string
		filter RawFilter
		want   []string
	}{
		{
			name:   "include pattern is case-insensitive",
			filter: RawFilter{IncludePattern: `zen.*\.lv1$`},
			want:   []string{"201022_000000_P06_ZEN.LV1", "201022_120000_P06_ZEN.LV1"},
		},
		{
			name:   "exclude pattern",
			filter: RawFilter{ExcludePattern: `\.lv0$`},
			want: []string{
				"201022_000000_P06_ZEN.LV1", "201022_120000_P06_ZEN.LV1",
				"Stare_06_20201022_12.hpl", "Stare_06_20201022_13.hpl",
			},
		},
		{
			name:   "include tag subset",
			filter: RawFilter{IncludeTagSubset: []string{"co"}},
			want:   []string{"Stare_06_20201022_12.hpl", "Stare_06_20201022_13.hpl"},
		},
		{
			name:   "exclude tag subset",
			filter: RawFilter{IncludeTagSubset: []string{"co"}, ExcludeTagSubset: []string{"co", "cross"}},
			want:   []string{"Stare_06_20201022_12.hpl"},
		},
		{
			name:   "prefix and suffix",
			filter: RawFilter{FilenamePrefix: "Stare", FilenameSuffix: "13.hpl"},
			want:   []string{"Stare_06_20201022_13.hpl"},
		},
		{
			name:   "largest only",
			filter: RawFilter{IncludePattern: `\.lv1$`, LargestOnly: true},
			want:   []string{"201022_120000_P06_ZEN.LV1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, err := tt.filter.apply(files)
			require.NoError(t, err)
			var names []string
			for _, f := range kept {
				names = append(names, f.Filename)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestRawFilterInvalidPattern(t *testing.T) {
	filter := RawFilter{IncludePattern: `([`}
	_, err := filter.apply(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filename pattern")
}

func TestGetSiteCaching(t *testing.T) {
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/sites/bucharest", types.Site{ID: "bucharest"})
	p := f.newProcessor(nil, nil, nil)

	date := types.MustParseDate("2024-03-01")
	site, err := p.GetSite(context.Background(), "bucharest", date)
	require.NoError(t, err)
	assert.Equal(t, "bucharest", site.ID)

	_, err = p.GetSite(context.Background(), "bucharest", date)
	require.NoError(t, err)
	assert.Len(t, f.portalRequests(http.MethodGet, "/api/sites/bucharest"), 1)

	// a different date is a different cache entry
	_, err = p.GetSite(context.Background(), "bucharest", date.AddDays(1))
	require.NoError(t, err)
	requests := f.portalRequests(http.MethodGet, "/api/sites/bucharest")
	require.Len(t, requests, 2)
	assert.Equal(t, "2024-03-01", requests[0].Query.Get("date"))
	assert.Equal(t, "2024-03-02", requests[1].Query.Get("date"))
}

func TestGetModel(t *testing.T) {
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/models", []types.Model{{ID: "ecmwf"}, {ID: "gdas1"}})
	p := f.newProcessor(nil, nil, nil)

	model, err := p.GetModel(context.Background(), "ecmwf")
	require.NoError(t, err)
	assert.Equal(t, "ecmwf", model.ID)

	_, err = p.GetModel(context.Background(), "gdas1")
	require.NoError(t, err)
	assert.Len(t, f.portalRequests(http.MethodGet, "/api/models"), 1)

	_, err = p.GetModel(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")
}

func TestFetchProduct(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	params := &types.InstrumentParams{
		BaseParams: types.BaseParams{Site: testSite(), Date: date, Product: testProduct("radar", types.ProductTypeInstrument)},
		Instrument: testInstrument(),
	}

	t.Run("none", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/files", []types.ProductFile{})
		p := f.newProcessor(nil, nil, nil)

		file, err := p.FetchProduct(context.Background(), params)
		require.NoError(t, err)
		assert.Nil(t, file)

		requests := f.portalRequests(http.MethodGet, "/api/files")
		require.Len(t, requests, 1)
		query := requests[0].Query
		assert.Equal(t, "bucharest", query.Get("site"))
		assert.Equal(t, "2020-10-22", query.Get("date"))
		assert.Equal(t, "radar", query.Get("product"))
		assert.Equal(t, "https://hdl.handle.net/123/rpg", query.Get("instrumentPid"))
		assert.Equal(t, "true", query.Get("developer"))
	})

	t.Run("unique", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/files", []types.ProductFile{{UUID: "u1"}})
		p := f.newProcessor(nil, nil, nil)

		file, err := p.FetchProduct(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, "u1", file.UUID)
	})

	t.Run("multiple", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/files", []types.ProductFile{{UUID: "u1"}, {UUID: "u2"}})
		p := f.newProcessor(nil, nil, nil)

		_, err := p.FetchProduct(context.Background(), params)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected at most one")
	})

	t.Run("model files endpoint", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/model-files", []types.ProductFile{{UUID: "m1"}})
		p := f.newProcessor(nil, nil, nil)

		modelParams := &types.ModelParams{
			BaseParams: types.BaseParams{Site: testSite(), Date: date, Product: testProduct("model")},
			Model:      &types.Model{ID: "ecmwf"},
		}
		file, err := p.FetchProduct(context.Background(), modelParams)
		require.NoError(t, err)
		assert.Equal(t, "m1", file.UUID)

		requests := f.portalRequests(http.MethodGet, "/api/model-files")
		require.Len(t, requests, 1)
		assert.Equal(t, "ecmwf", requests[0].Query.Get("model"))
		assert.Empty(t, f.portalRequests(http.MethodGet, "/api/files"))
	})
}

func TestFetchModelUpload(t *testing.T) {
	date := types.MustParseDate("2024-03-01")

	t.Run("filters truncated uploads", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/raw-model-files", []types.RawFile{
			{UUID: "small", Size: 20200},
			{UUID: "ok", Size: 500000},
		})
		p := f.newProcessor(nil, nil, nil)

		file, err := p.FetchModelUpload(context.Background(), "bucharest", date, "ecmwf")
		require.NoError(t, err)
		assert.Equal(t, "ok", file.UUID)
	})

	t.Run("none valid is a skip", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/raw-model-files", []types.RawFile{{UUID: "small", Size: 100}})
		p := f.newProcessor(nil, nil, nil)

		_, err := p.FetchModelUpload(context.Background(), "bucharest", date, "ecmwf")
		require.Error(t, err)
		assert.True(t, types.IsRawDataMissing(err))
	})

	t.Run("several valid is a misc skip", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on(http.MethodGet, "/api/raw-model-files", []types.RawFile{
			{UUID: "a", Size: 500000},
			{UUID: "b", Size: 600000},
		})
		p := f.newProcessor(nil, nil, nil)

		_, err := p.FetchModelUpload(context.Background(), "bucharest", date, "ecmwf")
		require.Error(t, err)
		skip, ok := types.AsSkip(err)
		require.True(t, ok)
		assert.Equal(t, types.SkipKindMisc, skip.Kind)
	})
}

func TestDownloadInstrument(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	content := []byte("raw radar bytes")
	sum := md5OfBytes(content)

	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/raw-files", []types.RawFile{
		{
			UUID: "raw-1", Filename: "201022_000000.LV1", Checksum: sum,
			Size: int64(len(content)), S3Key: "bucharest/raw-1/201022_000000.LV1",
			InstrumentInfo: &types.InstrumentInfo{PID: "https://hdl.handle.net/123/rpg"},
		},
		{UUID: "raw-2", Filename: "chm.nc", Checksum: sum, Size: int64(len(content)), S3Key: "k2"},
	})
	f.setObject(storage.BucketUpload, "bucharest/raw-1/201022_000000.LV1", content)
	p := f.newProcessor(nil, nil, nil)

	download, err := p.DownloadInstrument(context.Background(), "bucharest", date, testInstrument(), t.TempDir(),
		RawFilter{IncludePattern: `\.lv1$`})
	require.NoError(t, err)
	require.Len(t, download.Paths, 1)
	assert.Equal(t, []string{"raw-1"}, download.UUIDs)
	assert.Equal(t, []string{"https://hdl.handle.net/123/rpg"}, download.InstrumentPIDs)

	data, err := os.ReadFile(download.Paths[0])
	require.NoError(t, err)
	assert.Equal(t, content, data)

	requests := f.portalRequests(http.MethodGet, "/api/raw-files")
	require.Len(t, requests, 1)
	query := requests[0].Query
	assert.Equal(t, "https://hdl.handle.net/123/rpg", query.Get("instrumentPid"))
	assert.ElementsMatch(t, []string{"uploaded", "processed"}, query["status[]"])
}

func TestDownloadInstrumentEmpty(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/raw-files", []types.RawFile{})
	p := f.newProcessor(nil, nil, nil)

	_, err := p.DownloadInstrument(context.Background(), "bucharest", date, testInstrument(), t.TempDir(), RawFilter{})
	require.Error(t, err)
	assert.True(t, types.IsRawDataMissing(err))

	download, err := p.DownloadInstrument(context.Background(), "bucharest", date, testInstrument(), t.TempDir(),
		RawFilter{AllowEmpty: true})
	require.NoError(t, err)
	assert.Empty(t, download.Paths)
}

func TestDownloadAdjoiningDailyFiles(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/raw-files", []types.RawFile{})
	p := f.newProcessor(nil, nil, nil)

	params := &types.InstrumentParams{
		BaseParams: types.BaseParams{Site: testSite(), Date: date, Product: testProduct("doppler-lidar", types.ProductTypeInstrument)},
		Instrument: testInstrument(),
	}
	_, err := p.DownloadAdjoiningDailyFiles(context.Background(), params, t.TempDir(), RawFilter{AllowEmpty: true})
	require.NoError(t, err)

	requests := f.portalRequests(http.MethodGet, "/api/raw-files")
	require.Len(t, requests, 1)
	query := requests[0].Query
	assert.Equal(t, "2020-10-22", query.Get("dateFrom"))
	assert.Equal(t, "2020-10-23", query.Get("dateTo"))
	assert.Empty(t, query.Get("date"))
}

// writeProduct writes a minimal NetCDF product file and returns its
// path and raw bytes.
func writeProduct(t *testing.T, dir string, attrs map[string]string) (string, []byte) {
	t.Helper()
	ds := &ncdf.Dataset{}
	for name, value := range attrs {
		ds.SetAttr(name, value)
	}
	path := filepath.Join(dir, "product.nc")
	require.NoError(t, ncdf.WriteFile(path, ds))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return path, data
}

func TestUploadFile(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	path, data := writeProduct(t, t.TempDir(), map[string]string{
		"file_uuid":          "f0000000-1111-2222-3333-444455556666",
		"pid":                "https://hdl.handle.net/21.12132/1.abc",
		"cloudnetpy_version": "1.66.0",
		"source_file_uuids":  "a1, b2, c3",
	})

	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)

	params := &types.InstrumentParams{
		BaseParams: types.BaseParams{Site: testSite(), Date: date, Product: testProduct("radar", types.ProductTypeInstrument)},
		Instrument: testInstrument(),
	}
	payload, err := p.UploadFile(context.Background(), params, path, "20201022_bucharest_rpg-fmcw-94_a1b2c3d4.nc", true, false)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, "f0000000-1111-2222-3333-444455556666", payload.UUID)
	assert.Equal(t, hex.EncodeToString(sum[:]), payload.Checksum)
	assert.Equal(t, ncdf.FormatNetCDF3, payload.Format)
	assert.Equal(t, int64(len(data)), payload.Size)
	assert.True(t, payload.Volatile)
	assert.Equal(t, "1.66.0", payload.ProcessorVersion)
	assert.Equal(t, []string{"a1", "b2", "c3"}, payload.SourceFileIDs)
	assert.Equal(t, "v-test", payload.Version)
	require.NotNil(t, payload.PID)
	require.NotNil(t, payload.InstrumentPID)
	assert.Equal(t, "https://hdl.handle.net/123/rpg", *payload.InstrumentPID)

	puts := f.storeRequests(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/cloudnet-product-volatile/20201022_bucharest_rpg-fmcw-94_a1b2c3d4.nc", puts[0].Path)

	metaPuts := f.portalRequests(http.MethodPut, "/files/20201022_bucharest_rpg-fmcw-94_a1b2c3d4.nc")
	require.Len(t, metaPuts, 1)
	var sent types.FilePayload
	require.NoError(t, json.Unmarshal(metaPuts[0].Body, &sent))
	assert.Equal(t, payload.UUID, sent.UUID)
	assert.Equal(t, "bucharest", sent.Site)
	assert.Equal(t, "radar", sent.Product)
}

func TestUploadFileStableBucket(t *testing.T) {
	date := types.MustParseDate("2020-10-22")
	path, _ := writeProduct(t, t.TempDir(), map[string]string{"file_uuid": "u1"})

	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)

	params := &types.ProductParams{
		BaseParams: types.BaseParams{Site: testSite(), Date: date, Product: testProduct("classification", types.ProductTypeGeophysical)},
	}
	_, err := p.UploadFile(context.Background(), params, path, "x.nc", false, true)
	require.NoError(t, err)

	puts := f.storeRequests(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/cloudnet-product/x.nc", puts[0].Path)
}

func TestUploadFileMissingUUID(t *testing.T) {
	path, _ := writeProduct(t, t.TempDir(), map[string]string{"title": "no uuid"})

	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)

	params := &types.ProductParams{
		BaseParams: types.BaseParams{Site: testSite(), Date: types.Today(), Product: testProduct("classification")},
	}
	_, err := p.UploadFile(context.Background(), params, path, "x.nc", true, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_uuid")
	assert.Empty(t, f.storeRequests(http.MethodPut))
}

func TestCreateAndUploadImages(t *testing.T) {
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/products/variables", []portal.ProductVariables{
		{ID: "classification", Variables: []types.ProductVariable{
			{ID: "classification-target_classification"},
			{ID: "classification-detection_status"},
		}},
	})

	dir := t.TempDir()
	plotter := science.PlotterFunc(func(ctx context.Context, req *science.PlotRequest) ([]science.Image, error) {
		require.Equal(t, "classification", req.Product)
		require.Equal(t, []string{"classification-target_classification", "classification-detection_status"}, req.Variables)
		var images []science.Image
		for _, id := range req.Variables {
			path := filepath.Join(dir, id+".png")
			require.NoError(t, os.WriteFile(path, []byte("png:"+id), 0o644))
			images = append(images, science.Image{
				Path:       path,
				VariableID: id,
				Dimensions: types.ImageDimensions{Width: 1200, Height: 700, MarginLeft: 80},
			})
		}
		return images, nil
	})
	p := f.newProcessor(nil, plotter, nil)

	keys, err := p.CreateAndUploadImages(context.Background(),
		"/tmp/in.nc", "classification", "f0e1d2c3-0000-0000-0000-000000000000",
		"20201022_bucharest_classification.nc", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20201022_bucharest_classification-f0e1d2c3-classification-target_classification.png",
		"20201022_bucharest_classification-f0e1d2c3-classification-detection_status.png",
	}, keys)

	puts := f.storeRequests(http.MethodPut)
	require.Len(t, puts, 2)
	assert.Equal(t, "/cloudnet-img/"+keys[0], puts[0].Path)

	vizPuts := f.portalRequests(http.MethodPut, "/visualizations/"+keys[0])
	require.Len(t, vizPuts, 1)
	var viz types.Visualization
	require.NoError(t, json.Unmarshal(vizPuts[0].Body, &viz))
	assert.Equal(t, "f0e1d2c3-0000-0000-0000-000000000000", viz.SourceFileID)
	assert.Equal(t, 1200, viz.Dimensions.Width)
}

func TestCreateAndUploadImagesNoVariables(t *testing.T) {
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/products/variables", []portal.ProductVariables{})
	plotter := science.PlotterFunc(func(ctx context.Context, req *science.PlotRequest) ([]science.Image, error) {
		t.Fatal("plotter must not run without variables")
		return nil, nil
	})
	p := f.newProcessor(nil, plotter, nil)

	keys, err := p.CreateAndUploadImages(context.Background(), "/tmp/in.nc", "model", "u", "x.nc", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, f.storeRequests(http.MethodPut))
}

func TestUploadQualityReport(t *testing.T) {
	f := newFakeBackend(t)
	qc := science.QCFunc(func(ctx context.Context, req *science.QCRequest) (*types.QualityReport, error) {
		assert.Equal(t, "bucharest", req.Site)
		return &types.QualityReport{
			QcVersion: "1.5.2",
			Tests: []types.QualityTest{
				{TestID: "TestUnits", Exceptions: []types.QualityTestException{
					{Result: types.ErrorLevelWarning, Message: "Bad units"},
				}},
			},
		}, nil
	})
	p := f.newProcessor(nil, nil, qc)

	level, err := p.UploadQualityReport(context.Background(), "/tmp/in.nc", "uuid-1", testSite(), "classification")
	require.NoError(t, err)
	assert.Equal(t, types.ErrorLevelWarning, level)

	puts := f.portalRequests(http.MethodPut, "/quality/uuid-1")
	require.Len(t, puts, 1)
	var report types.QualityReport
	require.NoError(t, json.Unmarshal(puts[0].Body, &report))
	assert.Equal(t, "1.5.2", report.QcVersion)
	assert.False(t, report.Timestamp.IsZero())
}

func TestUpdateStatuses(t *testing.T) {
	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)

	err := p.UpdateStatuses(context.Background(), []string{"r1", "r2"}, types.RawStatusProcessed)
	require.NoError(t, err)

	posts := f.portalRequests(http.MethodPost, "/upload-metadata")
	require.Len(t, posts, 2)
	var body map[string]string
	require.NoError(t, json.Unmarshal(posts[1].Body, &body))
	assert.Equal(t, "r2", body["uuid"])
	assert.Equal(t, "processed", body["status"])
}

func TestFetchProducts(t *testing.T) {
	f := newFakeBackend(t)
	f.on(http.MethodGet, "/api/files", []types.ProductFile{{UUID: "f1"}, {UUID: "f2"}})
	p := f.newProcessor(nil, nil, nil)

	files, err := p.FetchProducts(context.Background(), testSite(), types.MustParseDate("2020-10-22"), "radar")
	require.NoError(t, err)
	require.Len(t, files, 2)

	gets := f.portalRequests(http.MethodGet, "/api/files")
	require.Len(t, gets, 1)
	q := gets[0].Query
	assert.Equal(t, "bucharest", q.Get("site"))
	assert.Equal(t, "2020-10-22", q.Get("date"))
	assert.Equal(t, "radar", q.Get("product"))
	// Source scans must see experimental files too
	assert.Equal(t, "true", q.Get("developer"))
}

func TestDownloadURL(t *testing.T) {
	content := []byte("coefficient table")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coeffs/lwp_0deg.dat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(content)
	}))
	t.Cleanup(srv.Close)

	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)
	dir := t.TempDir()

	dest, err := p.DownloadURL(context.Background(), srv.URL+"/coeffs/lwp_0deg.dat", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lwp_0deg.dat"), dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestDownloadURLRejectsBadURLs(t *testing.T) {
	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)
	dir := t.TempDir()

	_, err := p.DownloadURL(context.Background(), "://bad", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid coefficient url")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err = p.DownloadURL(context.Background(), srv.URL+"/", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no filename")

	_, err = p.DownloadURL(context.Background(), srv.URL+"/coeffs/missing.dat", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFreezeFile(t *testing.T) {
	f := newFakeBackend(t)
	p := f.newProcessor(nil, nil, nil)

	filename := "20201022_bucharest_classification.nc"
	pidStr := "https://hdl.handle.net/21.T12995/test.e0000000"
	path := filepath.Join(t.TempDir(), filename)
	ds := &ncdf.Dataset{}
	ds.SetAttr("file_uuid", "e0000000-0000-0000-0000-00000000000e")
	ds.SetAttr("pid", pidStr)
	require.NoError(t, ncdf.WriteFile(path, ds))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	file := &types.ProductFile{
		UUID:     "e0000000-0000-0000-0000-00000000000e",
		Filename: filename,
		Volatile: true,
	}
	require.NoError(t, p.FreezeFile(context.Background(), file, path, pidStr))

	puts := f.storeRequests(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/cloudnet-product/"+filename, puts[0].Path)

	posts := f.portalRequests(http.MethodPost, "/api/files")
	require.Len(t, posts, 1)
	var update map[string]any
	require.NoError(t, json.Unmarshal(posts[0].Body, &update))
	assert.Equal(t, file.UUID, update["uuid"])
	assert.Equal(t, false, update["volatile"])
	assert.Equal(t, pidStr, update["pid"])
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), update["checksum"])
	assert.Equal(t, float64(len(data)), update["size"])
	assert.Equal(t, "v-test", update["version"])

	deletes := f.storeRequests(http.MethodDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "/cloudnet-product-volatile/"+filename, deletes[0].Path)
}
