package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/storage"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// minModelSize filters out truncated model uploads
const minModelSize = 20200

// RawFilter narrows a raw-file listing before download. The zero value
// keeps everything.
type RawFilter struct {
	// IncludePattern keeps only filenames matching this regexp
	// (case-insensitive).
	IncludePattern string

	// ExcludePattern drops filenames matching this regexp
	// (case-insensitive).
	ExcludePattern string

	// IncludeTagSubset keeps only files carrying every listed tag
	IncludeTagSubset []string

	// ExcludeTagSubset drops files carrying every listed tag
	ExcludeTagSubset []string

	// FilenamePrefix and FilenameSuffix are literal requirements
	FilenamePrefix string
	FilenameSuffix string

	// LargestOnly keeps the single biggest matching file
	LargestOnly bool

	// AllowEmpty returns an empty download instead of a skip when
	// nothing matches
	AllowEmpty bool
}

func (f *RawFilter) apply(files []types.RawFile) ([]types.RawFile, error) {
	include, err := compilePattern(f.IncludePattern)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePattern(f.ExcludePattern)
	if err != nil {
		return nil, err
	}

	var kept []types.RawFile
	for _, file := range files {
		if include != nil && !include.MatchString(file.Filename) {
			continue
		}
		if exclude != nil && exclude.MatchString(file.Filename) {
			continue
		}
		if f.FilenamePrefix != "" && !strings.HasPrefix(file.Filename, f.FilenamePrefix) {
			continue
		}
		if f.FilenameSuffix != "" && !strings.HasSuffix(file.Filename, f.FilenameSuffix) {
			continue
		}
		if len(f.IncludeTagSubset) > 0 && !hasAllTags(&file, f.IncludeTagSubset) {
			continue
		}
		if len(f.ExcludeTagSubset) > 0 && hasAllTags(&file, f.ExcludeTagSubset) {
			continue
		}
		kept = append(kept, file)
	}

	if f.LargestOnly && len(kept) > 1 {
		largest := kept[0]
		for _, file := range kept[1:] {
			if file.Size > largest.Size {
				largest = file
			}
		}
		kept = []types.RawFile{largest}
	}
	return kept, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filename pattern %q: %w", pattern, err)
	}
	return re, nil
}

func hasAllTags(file *types.RawFile, tags []string) bool {
	for _, tag := range tags {
		if !file.HasTag(tag) {
			return false
		}
	}
	return true
}

// DownloadInstrument lists the day's raw uploads of one instrument
// unit, applies the filter and downloads what remains. An empty result
// is a raw-data-missing skip unless the filter allows it.
func (p *Processor) DownloadInstrument(ctx context.Context, site string, date types.Date, instrument *types.InstrumentInfo, dir string, filter RawFilter) (*storage.RawDownload, error) {
	files, err := p.listRaw(ctx, site, &date, nil, instrument)
	if err != nil {
		return nil, err
	}
	return p.filterAndDownload(ctx, files, dir, filter, instrument.InstrumentID, site, date)
}

// DownloadAdjoiningDailyFiles downloads the raw uploads of the task's
// day and the following day. Instruments that roll their files over at
// local midnight need both to cover one UTC day.
func (p *Processor) DownloadAdjoiningDailyFiles(ctx context.Context, params *types.InstrumentParams, dir string, filter RawFilter) (*storage.RawDownload, error) {
	base := params.Base()
	next := base.Date.AddDays(1)
	files, err := p.listRaw(ctx, base.Site.ID, &base.Date, &next, params.Instrument)
	if err != nil {
		return nil, err
	}
	return p.filterAndDownload(ctx, files, dir, filter, params.Instrument.InstrumentID, base.Site.ID, base.Date)
}

func (p *Processor) filterAndDownload(ctx context.Context, files []types.RawFile, dir string, filter RawFilter, instrumentID, site string, date types.Date) (*storage.RawDownload, error) {
	kept, err := filter.apply(files)
	if err != nil {
		return nil, err
	}
	if len(kept) == 0 {
		if filter.AllowEmpty {
			return &storage.RawDownload{}, nil
		}
		return nil, types.RawDataMissing("no raw %s data for %s on %s", instrumentID, site, date)
	}
	return p.storage.DownloadRawData(ctx, kept, dir)
}

func (p *Processor) listRaw(ctx context.Context, site string, date, dateTo *types.Date, instrument *types.InstrumentInfo) ([]types.RawFile, error) {
	query := portal.RawQuery{
		Site: site,
		// processed files stay eligible so reruns see the same inputs
		Status: []types.RawStatus{types.RawStatusUploaded, types.RawStatusProcessed},
	}
	if dateTo != nil {
		query.DateFrom = date
		query.DateTo = dateTo
	} else {
		query.Date = date
	}
	if instrument != nil {
		if instrument.PID != "" {
			query.InstrumentPID = instrument.PID
		} else {
			query.Instrument = instrument.InstrumentID
		}
	}
	return p.portal.RawFiles(ctx, query)
}

// FetchModelUpload returns the day's valid raw model upload. Truncated
// uploads are ignored; several valid ones are a misc skip because the
// ambiguity needs operator action.
func (p *Processor) FetchModelUpload(ctx context.Context, site string, date types.Date, modelID string) (*types.RawFile, error) {
	files, err := p.portal.RawModelFiles(ctx, portal.RawQuery{
		Site:   site,
		Date:   &date,
		Model:  modelID,
		Status: []types.RawStatus{types.RawStatusUploaded, types.RawStatusProcessed},
	})
	if err != nil {
		return nil, err
	}

	var valid []types.RawFile
	for _, file := range files {
		if file.Size > minModelSize {
			valid = append(valid, file)
		}
	}
	switch len(valid) {
	case 0:
		return nil, types.RawDataMissing("no valid raw %s data for %s on %s", modelID, site, date)
	case 1:
		return &valid[0], nil
	}
	return nil, types.MiscError("found %d valid raw %s files for %s on %s, expected one",
		len(valid), modelID, site, date)
}

// DownloadRawData downloads raw uploads verifying MD5 checksums
func (p *Processor) DownloadRawData(ctx context.Context, files []types.RawFile, dir string) (*storage.RawDownload, error) {
	return p.storage.DownloadRawData(ctx, files, dir)
}

// DownloadProduct downloads one product file
func (p *Processor) DownloadProduct(ctx context.Context, file *types.ProductFile, dir string) (string, error) {
	return p.storage.DownloadProduct(ctx, file, dir)
}

// DownloadProducts downloads several product files in parallel
func (p *Processor) DownloadProducts(ctx context.Context, files []types.ProductFile, dir string) ([]string, error) {
	return p.storage.DownloadProducts(ctx, files, dir)
}

// DownloadURL fetches a plain URL into dir, named after the last path
// segment. Calibration documents reference coefficient files this way.
func (p *Processor) DownloadURL(ctx context.Context, rawURL, dir string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid coefficient url %q: %w", rawURL, err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("coefficient url %q has no filename", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", rawURL, err)
	}
	return dest, nil
}
