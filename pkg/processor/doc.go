/*
Package processor composes the engine's clients into the primitives
task handlers run on.

	┌──────────────────────────────────────────────────────┐
	│                      Processor                       │
	│                                                      │
	│  reference cache: sites / products / instruments /   │
	│  models / plottable variables                        │
	│                                                      │
	│  fetch     → portal (files, model-files, raw-files)  │
	│  download  → storage (md5/sha-256 verified)          │
	│  transform → science toolbox                         │
	│  upload    → storage PUT + portal metadata PUT       │
	│  plots/qc  → science toolbox + portal records        │
	│  pid/dvas  → collaborator clients                    │
	└──────────────────────────────────────────────────────┘

The processor is mechanism, not policy: it knows how to fetch, name,
upload and register artifacts, while pkg/worker decides what happens
for each task type.

# Filenames

A first-ever output gets a deterministic name; later runs keep the
existing file's name:

	instrument  YYYYMMDD_<site>_<instrument>_<unit uuid prefix>.nc
	model       YYYYMMDD_<site>_<model>.nc
	evaluation  YYYYMMDD_<site>_<product>_<model>.nc
	product     YYYYMMDD_<site>_<product>.nc

with the historical identifier aliases iwc-Z-T-method and
lwc-scaled-adiabatic.

# Integration Points

  - pkg/worker: all task handlers
  - pkg/portal, pkg/storage, pkg/pid, pkg/dvas: composed clients
  - pkg/science: transform, plot and QC boundaries

# Thread Safety

The reference cache is mutex-guarded; all operations are safe for
concurrent use, though a worker drives them sequentially.
*/
package processor
