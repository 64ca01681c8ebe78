/*
Package housekeeping feeds instrument diagnostics to the housekeeping
subsystem.

Instrument uploads carry engineering data (temperatures, voltages,
status words) alongside the measurements. The hkd task hands the raw
files to the subsystem that extracts and stores those series; this
package is only the boundary, reusing the toolbox contract from
pkg/science with the housekeeping subcommand.

# Usage

	ingester := housekeeping.New(toolbox)
	resp, err := ingester.Ingest(ctx, &housekeeping.Request{
		Site:         "hyytiala",
		Date:         date,
		InstrumentID: "rpg-fmcw-94",
		RawPaths:     paths,
		UUIDs:        uuids,
	})

# Integration Points

  - pkg/worker: the hkd task handler
  - pkg/science: subprocess contract and skip classification
*/
package housekeeping
