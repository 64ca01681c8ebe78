package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDateRoundTrip tests wire encoding of calendar days
func TestDateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain date", in: `"2020-10-22"`, want: "2020-10-22"},
		{name: "full timestamp", in: `"2020-10-22T14:30:00Z"`, want: "2020-10-22"},
		{name: "timestamp with offset", in: `"2020-10-22T23:45:00+02:00"`, want: "2020-10-22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.Equal(t, tt.want, d.String())

			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.want+`"`, string(out))
		})
	}
}

// TestDateArithmetic tests day math used for task priorities and crons
func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2020-10-22")

	assert.Equal(t, "2020-10-23", d.AddDays(1).String())
	assert.Equal(t, "2020-10-21", d.AddDays(-1).String())
	assert.Equal(t, "20201022", d.Compact())
	assert.Equal(t, 9, MustParseDate("2020-10-31").DaysSince(d))
	assert.True(t, d.Before(MustParseDate("2020-10-23")))
	assert.False(t, d.After(MustParseDate("2020-10-23")))
}

// TestDateOfTruncatesToUTC tests that local times map to the UTC day
func TestDateOfTruncatesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 01:30 local on Oct 23 is still Oct 22 in UTC
	d := DateOf(time.Date(2020, 10, 23, 1, 30, 0, 0, loc))
	assert.Equal(t, "2020-10-22", d.String())
}

// TestProductKind tests the dispatch row classification
func TestProductKind(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    ProductKind
	}{
		{
			name:    "model product",
			product: Product{ID: "model", Level: Level1b},
			want:    KindModel,
		},
		{
			name:    "evaluation product",
			product: Product{ID: "l3-cf", Level: Level3, Types: []ProductType{ProductTypeEvaluation}},
			want:    KindEvaluation,
		},
		{
			name:    "instrument product",
			product: Product{ID: "radar", Level: Level1b, Types: []ProductType{ProductTypeInstrument}},
			want:    KindInstrument,
		},
		{
			name:    "geophysical product",
			product: Product{ID: "classification", Level: Level2, Types: []ProductType{ProductTypeGeophysical}},
			want:    KindProduct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.product.Kind())
		})
	}
}

// TestProcessParamsKind tests the runtime variant classification
func TestProcessParamsKind(t *testing.T) {
	site := &Site{ID: "bucharest"}
	date := MustParseDate("2020-10-22")

	instrument := &InstrumentParams{
		BaseParams: BaseParams{Site: site, Date: date, Product: &Product{ID: "radar", Types: []ProductType{ProductTypeInstrument}}},
		Instrument: &InstrumentInfo{UUID: "abc", InstrumentID: "rpg-fmcw-94"},
	}
	assert.Equal(t, KindInstrument, instrument.Kind())

	model := &ModelParams{
		BaseParams: BaseParams{Site: site, Date: date, Product: &Product{ID: "model"}},
		Model:      &Model{ID: "ecmwf"},
	}
	assert.Equal(t, KindModel, model.Kind())

	evaluation := &ModelParams{
		BaseParams: BaseParams{Site: site, Date: date, Product: &Product{ID: "l3-cf", Types: []ProductType{ProductTypeEvaluation}}},
		Model:      &Model{ID: "ecmwf"},
	}
	assert.Equal(t, KindEvaluation, evaluation.Kind())

	product := &ProductParams{
		BaseParams: BaseParams{Site: site, Date: date, Product: &Product{ID: "categorize", Types: []ProductType{ProductTypeGeophysical}}},
	}
	assert.Equal(t, KindProduct, product.Kind())
}

// TestSkipErrorTaxonomy tests classification of recoverable outcomes
func TestSkipErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    SkipKind
		missing bool
	}{
		{
			name:    "raw data missing",
			err:     RawDataMissing("No raw files for %s", "bucharest"),
			kind:    SkipKindRawDataMissing,
			missing: true,
		},
		{
			name: "misc error",
			err:  MiscError("Incomplete model file"),
			kind: SkipKindMisc,
		},
		{
			name: "generic skip",
			err:  SkipTask("Product already frozen"),
			kind: SkipKindTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, ok := AsSkip(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, skip.Kind)
			assert.True(t, IsSkip(tt.err))
			assert.Equal(t, tt.missing, IsRawDataMissing(tt.err))
		})
	}
}

// TestSkipErrorWrapping tests that wrapped causes stay visible
func TestSkipErrorWrapping(t *testing.T) {
	cause := assert.AnError
	err := WrapSkip(SkipKindMisc, cause, "transform failed for %s", "categorize")

	skip, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, SkipKindMisc, skip.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transform failed for categorize")

	// plain errors are not skips
	assert.False(t, IsSkip(assert.AnError))
}

// TestWorstErrorLevel tests quality report severity reduction
func TestWorstErrorLevel(t *testing.T) {
	tests := []struct {
		name   string
		report QualityReport
		want   ErrorLevel
	}{
		{
			name:   "empty report passes",
			report: QualityReport{},
			want:   ErrorLevelPass,
		},
		{
			name: "worst of mixed findings",
			report: QualityReport{Tests: []QualityTest{
				{TestID: "a", Exceptions: []QualityTestException{{Result: ErrorLevelInfo}}},
				{TestID: "b", Exceptions: []QualityTestException{{Result: ErrorLevelWarning}, {Result: ErrorLevelPass}}},
			}},
			want: ErrorLevelWarning,
		},
		{
			name: "error dominates",
			report: QualityReport{Tests: []QualityTest{
				{TestID: "a", Exceptions: []QualityTestException{{Result: ErrorLevelError}}},
				{TestID: "b", Exceptions: []QualityTestException{{Result: ErrorLevelWarning}}},
			}},
			want: ErrorLevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.WorstErrorLevel())
		})
	}
}

// TestSiteHelpers tests site type tag helpers
func TestSiteHelpers(t *testing.T) {
	site := &Site{ID: "secret", Types: []SiteType{SiteTypeCloudnet, SiteTypeHidden}}
	assert.True(t, site.IsHidden())
	assert.False(t, site.IsModelOnly())

	modelOnly := &Site{ID: "mace-head", Types: []SiteType{SiteTypeModel}}
	assert.True(t, modelOnly.IsModelOnly())
	assert.False(t, modelOnly.IsHidden())
}

// TestProductFileOptionalFields tests wire decoding of nullable fields
func TestProductFileOptionalFields(t *testing.T) {
	raw := `{
		"uuid": "f3a2",
		"filename": "20201022_bucharest_radar.nc",
		"checksum": "abc",
		"size": 100,
		"measurementDate": "2020-10-22",
		"site": {"id": "bucharest"},
		"product": {"id": "radar"},
		"pid": null,
		"volatile": true,
		"legacy": false,
		"dvasId": null,
		"format": "NetCDF3"
	}`

	var file ProductFile
	require.NoError(t, json.Unmarshal([]byte(raw), &file))
	assert.Nil(t, file.PID)
	assert.Nil(t, file.DvasID)
	assert.True(t, file.Volatile)
	assert.Equal(t, "2020-10-22", file.MeasurementDate.String())
}
