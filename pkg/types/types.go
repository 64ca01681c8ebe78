package types

import (
	"time"
)

// SiteType classifies a measurement site
type SiteType string

const (
	SiteTypeCloudnet SiteType = "cloudnet"
	SiteTypeCampaign SiteType = "campaign"
	SiteTypeArm      SiteType = "arm"
	SiteTypeHidden   SiteType = "hidden"
	SiteTypeModel    SiteType = "model"
)

// Site represents a ground station (read-only reference data)
type Site struct {
	ID                string     `json:"id"`
	HumanReadableName string     `json:"humanReadableName"`
	Latitude          float64    `json:"latitude"`
	Longitude         float64    `json:"longitude"`
	Altitude          float64    `json:"altitude"`
	Types             []SiteType `json:"type"`
	DvasID            *string    `json:"dvasId"`
}

// HasType reports whether the site carries the given type tag
func (s *Site) HasType(t SiteType) bool {
	for _, st := range s.Types {
		if st == t {
			return true
		}
	}
	return false
}

// IsHidden reports whether the site is hidden from public listings
func (s *Site) IsHidden() bool {
	return s.HasType(SiteTypeHidden)
}

// IsModelOnly reports whether the site exists only for model data
func (s *Site) IsModelOnly() bool {
	return s.HasType(SiteTypeModel)
}

// InstrumentInfo identifies a hardware unit across sites and time
type InstrumentInfo struct {
	UUID         string `json:"uuid"`
	PID          string `json:"pid"`
	InstrumentID string `json:"instrumentId"`
	Name         string `json:"name,omitempty"`
	SiteID       string `json:"siteId,omitempty"`
}

// ProductLevel is the processing level of a product
type ProductLevel string

const (
	Level1b ProductLevel = "1b"
	Level1c ProductLevel = "1c"
	Level2  ProductLevel = "2"
	Level3  ProductLevel = "3"
)

// ProductType classifies a product
type ProductType string

const (
	ProductTypeInstrument   ProductType = "instrument"
	ProductTypeGeophysical  ProductType = "geophysical"
	ProductTypeEvaluation   ProductType = "evaluation"
	ProductTypeExperimental ProductType = "experimental"
)

// ProductKind selects the dispatch row of the task matrix
type ProductKind string

const (
	KindModel      ProductKind = "model"
	KindEvaluation ProductKind = "evaluation"
	KindInstrument ProductKind = "instrument"
	KindProduct    ProductKind = "product"
)

// Product represents a product definition (read-only reference data)
type Product struct {
	ID                  string        `json:"id"`
	HumanReadableName   string        `json:"humanReadableName"`
	Level               ProductLevel  `json:"level"`
	Types               []ProductType `json:"type"`
	SourceInstrumentIDs []string      `json:"sourceInstrumentIds"`
	SourceProductIDs    []string      `json:"sourceProductIds"`
	DerivedProductIDs   []string      `json:"derivedProductIds"`
}

// HasType reports whether the product carries the given type tag
func (p *Product) HasType(t ProductType) bool {
	for _, pt := range p.Types {
		if pt == t {
			return true
		}
	}
	return false
}

// IsExperimental reports whether the product is experimental
func (p *Product) IsExperimental() bool {
	return p.HasType(ProductTypeExperimental)
}

// IsInstrument reports whether the product is a Level-1b instrument product
func (p *Product) IsInstrument() bool {
	return p.HasType(ProductTypeInstrument)
}

// IsGeophysical reports whether the product is geophysical
func (p *Product) IsGeophysical() bool {
	return p.HasType(ProductTypeGeophysical)
}

// Kind maps the product onto its dispatch row: model, evaluation
// (Level-3 model evaluation), instrument (Level-1b), or plain product.
func (p *Product) Kind() ProductKind {
	switch {
	case p.ID == ProductModel:
		return KindModel
	case p.HasType(ProductTypeEvaluation):
		return KindEvaluation
	case p.HasType(ProductTypeInstrument):
		return KindInstrument
	default:
		return KindProduct
	}
}

// Well-known product identifiers
const (
	ProductModel           = "model"
	ProductRadar           = "radar"
	ProductLidar           = "lidar"
	ProductMwr             = "mwr"
	ProductMwrL1c          = "mwr-l1c"
	ProductMwrSingle       = "mwr-single"
	ProductMwrMulti        = "mwr-multi"
	ProductDisdrometer     = "disdrometer"
	ProductDopplerLidar    = "doppler-lidar"
	ProductDopplerWind     = "doppler-lidar-wind"
	ProductWeatherStation  = "weather-station"
	ProductRainRadar       = "rain-radar"
	ProductCategorize      = "categorize"
	ProductCategorizeVoodo = "categorize-voodoo"
	ProductClassification  = "classification"
	ProductIwc             = "iwc"
	ProductLwc             = "lwc"
	ProductDrizzle         = "drizzle"
	ProductDer             = "der"
	ProductIer             = "ier"
	ProductCprSimulation   = "cpr-simulation"
	ProductEpsilonLidar    = "epsilon-lidar"
)

// RawStatus is the lifecycle state of an uploaded raw file.
// Status only advances uploaded -> processed -> (invalid), never backward.
type RawStatus string

const (
	RawStatusUploaded  RawStatus = "uploaded"
	RawStatusProcessed RawStatus = "processed"
	RawStatusInvalid   RawStatus = "invalid"
)

// RawFile represents an uploaded instrument or model file
type RawFile struct {
	UUID            string          `json:"uuid"`
	Filename        string          `json:"filename"`
	Checksum        string          `json:"checksum"` // MD5, hex
	Size            int64           `json:"size"`
	S3Key           string          `json:"s3key"`
	MeasurementDate Date            `json:"measurementDate"`
	Status          RawStatus       `json:"status"`
	SiteID          string          `json:"siteId"`
	InstrumentInfo  *InstrumentInfo `json:"instrumentInfo,omitempty"`
	ModelID         *string         `json:"modelId,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

// HasTag reports whether the raw file carries the given tag
func (r *RawFile) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ErrorLevel is the worst severity reported by a quality check run
type ErrorLevel string

const (
	ErrorLevelPass    ErrorLevel = "pass"
	ErrorLevelInfo    ErrorLevel = "info"
	ErrorLevelWarning ErrorLevel = "warning"
	ErrorLevelError   ErrorLevel = "error"
)

// Timeliness tags how promptly a file was produced after measurement
type Timeliness string

const (
	TimelinessNrt       Timeliness = "nrt"
	TimelinessRrt       Timeliness = "rrt"
	TimelinessScheduled Timeliness = "scheduled"
)

// Model represents a numerical weather model (read-only reference data)
type Model struct {
	ID            string  `json:"id"`
	OptimumOrder  int     `json:"optimumOrder"`
	SourceModelID *string `json:"sourceModelId,omitempty"`
}

// ProductFile represents a processed product as served by the data portal.
// A ProductFile is volatile (mutable in place, no PID) or frozen (immutable,
// has a PID, may have a DVAS id); the transition is one-way.
type ProductFile struct {
	UUID            string          `json:"uuid"`
	Filename        string          `json:"filename"`
	Checksum        string          `json:"checksum"` // SHA-256, hex
	Size            int64           `json:"size"`
	MeasurementDate Date            `json:"measurementDate"`
	Site            Site            `json:"site"`
	Product         Product         `json:"product"`
	Model           *Model          `json:"model,omitempty"`
	InstrumentInfo  *InstrumentInfo `json:"instrumentInfo,omitempty"`
	PID             *string         `json:"pid"`
	Volatile        bool            `json:"volatile"`
	Legacy          bool            `json:"legacy"`
	DvasID          *int64          `json:"dvasId"`
	DvasUpdatedAt   *time.Time      `json:"dvasUpdatedAt,omitempty"`
	ErrorLevel      *ErrorLevel     `json:"errorLevel,omitempty"`
	SourceFileIDs   []string        `json:"sourceFileIds,omitempty"`
	Format          string          `json:"format"`
	Version         string          `json:"version,omitempty"`
	Timeliness      Timeliness      `json:"timeliness,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

// FilePayload is the PUT /files body derived from a local NetCDF
type FilePayload struct {
	UUID             string   `json:"uuid"`
	Checksum         string   `json:"checksum"`
	MeasurementDate  Date     `json:"measurementDate"`
	Format           string   `json:"format"`
	Size             int64    `json:"size"`
	Volatile         bool     `json:"volatile"`
	PID              *string  `json:"pid,omitempty"`
	ProcessorVersion string   `json:"cloudnetpyVersion,omitempty"`
	Version          string   `json:"version,omitempty"`
	Site             string   `json:"site"`
	Product          string   `json:"product"`
	SourceFileIDs    []string `json:"sourceFileIds,omitempty"`
	Model            *string  `json:"model,omitempty"`
	InstrumentPID    *string  `json:"instrumentPid,omitempty"`
	InstrumentInfo   *string  `json:"instrumentInfoUuid,omitempty"`
	Legacy           bool     `json:"legacy"`
}

// Calibration is a per-instrument calibration document
type Calibration struct {
	MeasurementDate Date           `json:"measurementDate"`
	Data            map[string]any `json:"data"`
	CreatedAt       time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt,omitempty"`
}

// ImageDimensions describes a rendered visualization
type ImageDimensions struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	MarginTop    int `json:"marginTop"`
	MarginRight  int `json:"marginRight"`
	MarginBottom int `json:"marginBottom"`
	MarginLeft   int `json:"marginLeft"`
}

// Visualization is the PUT /visualizations body for one rendered image
type Visualization struct {
	SourceFileID string          `json:"sourceFileId"`
	VariableID   string          `json:"variableId"`
	Dimensions   ImageDimensions `json:"dimensions"`
}

// QualityTestException is one finding of a quality test
type QualityTestException struct {
	Result  ErrorLevel `json:"result"`
	Message string     `json:"message"`
}

// QualityTest is one test of a quality report
type QualityTest struct {
	TestID     string                 `json:"testId"`
	Exceptions []QualityTestException `json:"exceptions"`
}

// QualityReport is the PUT /quality body
type QualityReport struct {
	Timestamp time.Time     `json:"timestamp"`
	QcVersion string        `json:"qcVersion"`
	Tests     []QualityTest `json:"tests"`
}

// WorstErrorLevel reduces the report to its most severe finding
func (q *QualityReport) WorstErrorLevel() ErrorLevel {
	rank := map[ErrorLevel]int{
		ErrorLevelPass:    0,
		ErrorLevelInfo:    1,
		ErrorLevelWarning: 2,
		ErrorLevelError:   3,
	}
	worst := ErrorLevelPass
	for _, test := range q.Tests {
		for _, exc := range test.Exceptions {
			if rank[exc.Result] > rank[worst] {
				worst = exc.Result
			}
		}
	}
	return worst
}

// TaskType enumerates the six task kinds
type TaskType string

const (
	TaskProcess TaskType = "process"
	TaskPlot    TaskType = "plot"
	TaskQc      TaskType = "qc"
	TaskFreeze  TaskType = "freeze"
	TaskHkd     TaskType = "hkd"
	TaskDvas    TaskType = "dvas"
)

// TaskOptions carries per-task flags
type TaskOptions struct {
	DerivedProducts bool `json:"derivedProducts"`
}

// Task is the queue record delivered to a worker
type Task struct {
	ID                 int64       `json:"id"`
	Type               TaskType    `json:"type"`
	SiteID             string      `json:"siteId"`
	ProductID          string      `json:"productId"`
	MeasurementDate    Date        `json:"measurementDate"`
	InstrumentInfoUUID *string     `json:"instrumentInfoUuid,omitempty"`
	ModelID            *string     `json:"modelId,omitempty"`
	ScheduledAt        time.Time   `json:"scheduledAt"`
	Priority           int         `json:"priority"`
	Options            TaskOptions `json:"options"`
}

// TaskPayload is the POST /api/queue/publish body
type TaskPayload struct {
	Type               TaskType    `json:"type"`
	SiteID             string      `json:"siteId"`
	ProductID          string      `json:"productId"`
	MeasurementDate    Date        `json:"measurementDate"`
	InstrumentInfoUUID *string     `json:"instrumentInfoUuid,omitempty"`
	ModelID            *string     `json:"modelId,omitempty"`
	ScheduledAt        time.Time   `json:"scheduledAt"`
	Priority           int         `json:"priority"`
	Options            TaskOptions `json:"options"`
}

// ProductVariable is one plottable variable of a product
type ProductVariable struct {
	ID                string  `json:"id"`
	HumanReadableName string  `json:"humanReadableName"`
	ActrisName        *string `json:"actrisName,omitempty"`
	Order             int     `json:"order,omitempty"`
}
