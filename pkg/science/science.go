package science

import (
	"context"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// ProcessRequest describes one scientific transform invocation. The
// engine reads the inputs, harmonizes them into a NetCDF product at
// OutputPath and reports the file's uuid and the library version that
// produced it.
type ProcessRequest struct {
	Product       string         `json:"product"`
	Site          string         `json:"site"`
	Date          types.Date     `json:"date"`
	UUID          string         `json:"uuid,omitempty"`
	InstrumentID  string         `json:"instrumentId,omitempty"`
	InstrumentPID string         `json:"instrumentPid,omitempty"`
	ModelID       string         `json:"modelId,omitempty"`
	InputPaths    []string       `json:"inputPaths"`
	OutputPath    string         `json:"outputPath"`
	Calibration   map[string]any `json:"calibration,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

// ProcessResult reports a finished transform
type ProcessResult struct {
	UUID    string `json:"uuid"`
	Version string `json:"version"`
}

// PlotRequest asks for one PNG per plottable variable of a product file
type PlotRequest struct {
	ProductFilePath string   `json:"productFilePath"`
	Product         string   `json:"product"`
	Variables       []string `json:"variables"`
	OutputDir       string   `json:"outputDir"`
}

// Image is one rendered visualization
type Image struct {
	Path       string                `json:"path"`
	VariableID string                `json:"variableId"`
	Dimensions types.ImageDimensions `json:"dimensions"`
}

// QCRequest asks for a quality-control run over a product file
type QCRequest struct {
	ProductFilePath string `json:"productFilePath"`
	Product         string `json:"product"`
	Site            string `json:"site,omitempty"`
}

// Engine runs scientific transforms. The numeric libraries are outside
// this codebase; implementations shell out to the toolbox.
type Engine interface {
	Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// Plotter renders product visualizations
type Plotter interface {
	Plot(ctx context.Context, req *PlotRequest) ([]Image, error)
}

// QC runs the quality-control suite
type QC interface {
	Run(ctx context.Context, req *QCRequest) (*types.QualityReport, error)
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)

func (f EngineFunc) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	return f(ctx, req)
}

// PlotterFunc adapts a function to the Plotter interface
type PlotterFunc func(ctx context.Context, req *PlotRequest) ([]Image, error)

func (f PlotterFunc) Plot(ctx context.Context, req *PlotRequest) ([]Image, error) {
	return f(ctx, req)
}

// QCFunc adapts a function to the QC interface
type QCFunc func(ctx context.Context, req *QCRequest) (*types.QualityReport, error)

func (f QCFunc) Run(ctx context.Context, req *QCRequest) (*types.QualityReport, error) {
	return f(ctx, req)
}
