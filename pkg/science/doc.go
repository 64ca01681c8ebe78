/*
Package science defines the boundary to the scientific toolbox.

The numeric libraries that turn raw instrument and model uploads into
harmonized NetCDF products live outside this codebase. This package
defines narrow interfaces for the three operations the pipeline needs
(transform, plot, quality control) and a Toolbox implementation that
shells out to the toolbox binary.

# Contract

Each invocation runs

	cloudnet-toolbox <subcommand>

with a JSON request on stdin and a JSON response on stdout. Exit codes
classify the failure mode:

	0  success, response on stdout
	3  raw data missing or empty (skippable)
	4  semantically invalid input (skippable)

Exit 3 and 4 become SkipError values so the worker completes the task
instead of failing it; any other non-zero exit is fatal. The last
non-empty stderr line carries the one-line reason.

# Usage

	toolbox := science.NewToolbox(cfg.Tunables.ToolboxBinary, cfg.Tunables.ToolboxTimeout)

	result, err := toolbox.Process(ctx, &science.ProcessRequest{
		Product:    "classification",
		Site:       "hyytiala",
		Date:       date,
		InputPaths: paths,
		OutputPath: outputPath,
	})

Tests substitute EngineFunc, PlotterFunc and QCFunc adapters for the
real binary.

# Integration Points

  - pkg/worker: all six task handlers run through these interfaces
  - pkg/types: skip classification, quality reports, image dimensions
  - pkg/metrics: TransformDuration histogram

# Thread Safety

Toolbox is stateless after construction and safe for concurrent use;
each invocation owns its subprocess and buffers.
*/
package science
