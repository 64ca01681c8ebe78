/*
Package dvas mirrors frozen product metadata to the ACTRIS DVAS
federation portal.

Only frozen, geophysical, non-categorize files from sites with a DVAS
facility id are federation material; everything else surfaces as a
skip. The upload replaces any previous federation record of the same
CLU uuid and records the new dvasId on the data portal.

# Flow

	Upload(file, variables)
	  ├─ guard: volatile / no site dvasId / categorize / non-geophysical → skip
	  ├─ previous dvasId?  DELETE Metadata/delete/{id} + clear portal linkage
	  ├─ POST Metadata/add (bearer token) → Location: …/{dvasId}
	  └─ portal UpdateDvasInfo(uuid, now, dvasId)

Deletions authenticate with Basic auth, additions with the bearer
token; the federation API is asymmetric on purpose.

# Compliance

Measurements before 2023-01-01 predate the ACTRIS data policy and are
labelled "ACTRIS legacy"; later ones "ACTRIS associated".

# Integration Points

  - pkg/worker: the dvas task handler
  - pkg/portal: dvasId bookkeeping on the CLU side
  - cmd: operator purge via DeleteAll
*/
package dvas
